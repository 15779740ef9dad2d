// Package privdrop switches the process to an unprivileged user once every
// device it needs is open.
package privdrop

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

const (
	DefaultUser = "nobody"
)

// DefaultGroups keep access to hotplugged input nodes and the DRM card.
var DefaultGroups = []string{"input", "video"}

// ErrNotRoot is returned when the process cannot change its identity.
var ErrNotRoot = errors.New("privilege drop requires root")

// Credentials is a resolved target identity.
type Credentials struct {
	UID    int
	GID    int
	Groups []int
}

// Resolve looks up name and the supplementary groups.
func Resolve(name string, groups []string) (Credentials, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Credentials{}, fmt.Errorf("lookup user %s: %w", name, err)
	}
	c := Credentials{}
	if c.UID, err = strconv.Atoi(u.Uid); err != nil {
		return Credentials{}, fmt.Errorf("parse uid of %s: %w", name, err)
	}
	if c.GID, err = strconv.Atoi(u.Gid); err != nil {
		return Credentials{}, fmt.Errorf("parse gid of %s: %w", name, err)
	}
	for _, g := range groups {
		grp, err := user.LookupGroup(g)
		if err != nil {
			return Credentials{}, fmt.Errorf("lookup group %s: %w", g, err)
		}
		gid, err := strconv.Atoi(grp.Gid)
		if err != nil {
			return Credentials{}, fmt.Errorf("parse gid of %s: %w", g, err)
		}
		c.Groups = append(c.Groups, gid)
	}
	return c, nil
}

// Drop becomes user name with the given supplementary groups. Group
// changes happen before the uid change, which would forbid them.
func Drop(name string, groups ...string) error {
	if syscall.Geteuid() != 0 {
		return ErrNotRoot
	}
	c, err := Resolve(name, groups)
	if err != nil {
		return err
	}
	if err := syscall.Setgroups(c.Groups); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := syscall.Setgid(c.GID); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := syscall.Setuid(c.UID); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}
	logger.Info("Dropped privileges", "user", name, "groups", groups)
	return nil
}
