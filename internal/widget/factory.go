package widget

import (
	"time"

	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/icons"
	"github.com/tiny-dfr/tiny-dfr/internal/logger"
	"github.com/tiny-dfr/tiny-dfr/internal/metrics"
)

// Env supplies the resources widgets are built from.
type Env struct {
	Icons      *icons.Loader
	NewSampler func(metrics.Kind) (metrics.Sampler, error)
	Now        time.Time
}

// FromConfig builds the widget a button entry describes. Resources that
// fail to load degrade the widget instead of failing the layer: a missing
// icon shows its name, a missing metric source shows nothing.
func FromConfig(env Env, b config.Button) Widget {
	switch {
	case b.Text != "":
		return NewText(b.Text, b.Key)
	case b.Icon != "":
		if env.Icons != nil {
			img, err := env.Icons.Load(b.Icon, b.Theme)
			if err == nil {
				return NewIcon(img, b.Key)
			}
			logger.Warn("Icon unavailable, showing its name", "icon", b.Icon, "error", err)
		}
		return NewText(b.Icon, b.Key)
	case b.Time != "":
		return NewClock(b.Time, b.Locale, b.Key, env.Now)
	case b.Processor != "":
		return newMetric(env, metrics.CPU, b.Key)
	case b.Memory != "":
		return newMetric(env, metrics.Memory, b.Key)
	case b.Battery != "":
		return newMetric(env, metrics.Battery, b.Key)
	}
	logger.Warn("Button has no content, leaving it blank", "action", b.Action)
	return NewText("", b.Key)
}

func newMetric(env Env, kind metrics.Kind, key int) Widget {
	newSampler := env.NewSampler
	if newSampler == nil {
		newSampler = metrics.New
	}
	s, err := newSampler(kind)
	if err != nil {
		logger.Warn("Metric source unavailable", "kind", kind, "error", err)
		return NewMetric(nil, key, env.Now)
	}
	return NewMetric(s, key, env.Now)
}
