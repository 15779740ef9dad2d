package display

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding, see include/uapi/asm-generic/ioctl.h
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	drmIoctlBase = 'd'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | drmIoctlBase<<8 | nr
}

var (
	ioctlSetClientCap      = ioc(iocWrite, 0x0d, unsafe.Sizeof(drmSetClientCap{}))
	ioctlSetMaster         = ioc(iocNone, 0x1e, 0)
	ioctlModeGetResources  = ioc(iocRead|iocWrite, 0xa0, unsafe.Sizeof(drmModeCardRes{}))
	ioctlModeGetConnector  = ioc(iocRead|iocWrite, 0xa7, unsafe.Sizeof(drmModeGetConnector{}))
	ioctlModeGetProperty   = ioc(iocRead|iocWrite, 0xaa, unsafe.Sizeof(drmModeGetProperty{}))
	ioctlModeAddFB         = ioc(iocRead|iocWrite, 0xae, unsafe.Sizeof(drmModeFBCmd{}))
	ioctlModeRmFB          = ioc(iocRead|iocWrite, 0xaf, unsafe.Sizeof(uint32(0)))
	ioctlModeDirtyFB       = ioc(iocRead|iocWrite, 0xb1, unsafe.Sizeof(drmModeFBDirtyCmd{}))
	ioctlModeCreateDumb    = ioc(iocRead|iocWrite, 0xb2, unsafe.Sizeof(drmModeCreateDumb{}))
	ioctlModeMapDumb       = ioc(iocRead|iocWrite, 0xb3, unsafe.Sizeof(drmModeMapDumb{}))
	ioctlModeDestroyDumb   = ioc(iocRead|iocWrite, 0xb4, unsafe.Sizeof(drmModeDestroyDumb{}))
	ioctlModeGetPlaneRes   = ioc(iocRead|iocWrite, 0xb5, unsafe.Sizeof(drmModeGetPlaneRes{}))
	ioctlModeObjGetProps   = ioc(iocRead|iocWrite, 0xb9, unsafe.Sizeof(drmModeObjGetProperties{}))
	ioctlModeAtomic        = ioc(iocRead|iocWrite, 0xbc, unsafe.Sizeof(drmModeAtomic{}))
	ioctlModeCreatePropBlb = ioc(iocRead|iocWrite, 0xbd, unsafe.Sizeof(drmModeCreateBlob{}))
	ioctlModeDestroyPropBl = ioc(iocRead|iocWrite, 0xbe, unsafe.Sizeof(drmModeDestroyBlob{}))
)

const (
	clientCapUniversalPlanes = 2
	clientCapAtomic          = 3

	objectCRTC      = 0xcccccccc
	objectConnector = 0xc0c0c0c0
	objectPlane     = 0xeeeeeeee

	connectorConnected = 1

	atomicAllowModeset = 0x0400
)

type drmSetClientCap struct {
	Capability uint64
	Value      uint64
}

type drmModeCardRes struct {
	FBIDPtr        uint64
	CRTCIDPtr      uint64
	ConnectorIDPtr uint64
	EncoderIDPtr   uint64
	CountFBs       uint32
	CountCRTCs     uint32
	CountConns     uint32
	CountEncoders  uint32
	MinWidth       uint32
	MaxWidth       uint32
	MinHeight      uint32
	MaxHeight      uint32
}

type drmModeGetConnector struct {
	EncodersPtr   uint64
	ModesPtr      uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	CountModes    uint32
	CountProps    uint32
	CountEncoders uint32
	EncoderID     uint32
	ConnectorID   uint32
	Type          uint32
	TypeID        uint32
	Connection    uint32
	MMWidth       uint32
	MMHeight      uint32
	Subpixel      uint32
	_             uint32
}

// drmModeInfo is struct drm_mode_modeinfo; it is also the payload of the
// MODE_ID property blob.
type drmModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type drmModeGetProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [32]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

type drmModeFBCmd struct {
	FBID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	BPP    uint32
	Depth  uint32
	Handle uint32
}

type drmClipRect struct {
	X1, Y1, X2, Y2 uint16
}

type drmModeFBDirtyCmd struct {
	FBID     uint32
	Flags    uint32
	Color    uint32
	NumClips uint32
	ClipsPtr uint64
}

type drmModeCreateDumb struct {
	Height uint32
	Width  uint32
	BPP    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type drmModeMapDumb struct {
	Handle uint32
	_      uint32
	Offset uint64
}

type drmModeDestroyDumb struct {
	Handle uint32
}

type drmModeGetPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	_           uint32
}

type drmModeObjGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
	_             uint32
}

type drmModeAtomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

type drmModeCreateBlob struct {
	Data   uint64
	Length uint32
	BlobID uint32
}

type drmModeDestroyBlob struct {
	BlobID uint32
}

// connectorInfo is the subset of a connector Open needs.
type connectorInfo struct {
	ID        uint32
	Connected bool
	Modes     []drmModeInfo
}

// dumbBuffer describes a CPU-mappable scanout buffer.
type dumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// atomicProp is one (object, property, value) triple of an atomic request.
type atomicProp struct {
	Object   uint32
	Property uint32
	Value    uint64
}

// card is the set of DRM operations used by Display.
type card interface {
	SetClientCap(capability, value uint64) error
	SetMaster() error
	Resources() (connectors, crtcs []uint32, err error)
	Connector(id uint32) (*connectorInfo, error)
	Planes() ([]uint32, error)
	PropertyID(obj, objType uint32, name string) (uint32, error)
	CreateModeBlob(mode drmModeInfo) (uint32, error)
	DestroyBlob(id uint32) error
	CreateDumb(width, height, bpp uint32) (dumbBuffer, error)
	AddFB(width, height uint32, buf dumbBuffer, depth, bpp uint32) (uint32, error)
	AtomicCommit(props []atomicProp, flags uint32) error
	MapDumb(buf dumbBuffer) ([]byte, error)
	Unmap(mem []byte) error
	DirtyFB(fb uint32, clips []drmClipRect) error
	RmFB(fb uint32) error
	DestroyDumb(handle uint32) error
	Close() error
}

// fdCard talks to a real /dev/dri/card* node.
type fdCard struct {
	f *os.File
}

func openFDCard(path string) (card, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &fdCard{f: f}, nil
}

func (c *fdCard) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, c.f.Fd(), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}

func ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

func (c *fdCard) SetClientCap(capability, value uint64) error {
	arg := drmSetClientCap{Capability: capability, Value: value}
	if err := c.ioctl(ioctlSetClientCap, unsafe.Pointer(&arg)); err != nil {
		return fmt.Errorf("set client cap %d: %w", capability, err)
	}
	return nil
}

func (c *fdCard) SetMaster() error {
	if err := c.ioctl(ioctlSetMaster, nil); err != nil {
		return fmt.Errorf("acquire DRM master: %w", err)
	}
	return nil
}

func (c *fdCard) Resources() ([]uint32, []uint32, error) {
	var res drmModeCardRes
	if err := c.ioctl(ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, nil, fmt.Errorf("get resources: %w", err)
	}

	connectors := make([]uint32, res.CountConns)
	crtcs := make([]uint32, res.CountCRTCs)
	res = drmModeCardRes{
		ConnectorIDPtr: ptr(connectors),
		CRTCIDPtr:      ptr(crtcs),
		CountConns:     uint32(len(connectors)),
		CountCRTCs:     uint32(len(crtcs)),
	}
	err := c.ioctl(ioctlModeGetResources, unsafe.Pointer(&res))
	runtime.KeepAlive(connectors)
	runtime.KeepAlive(crtcs)
	if err != nil {
		return nil, nil, fmt.Errorf("get resources: %w", err)
	}
	return connectors[:min(len(connectors), int(res.CountConns))], crtcs[:min(len(crtcs), int(res.CountCRTCs))], nil
}

func (c *fdCard) Connector(id uint32) (*connectorInfo, error) {
	// A first call with no buffers forces detection and reports the counts.
	arg := drmModeGetConnector{ConnectorID: id}
	if err := c.ioctl(ioctlModeGetConnector, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("get connector %d: %w", id, err)
	}

	modes := make([]drmModeInfo, arg.CountModes)
	props := make([]uint32, arg.CountProps)
	values := make([]uint64, arg.CountProps)
	encoders := make([]uint32, arg.CountEncoders)
	arg = drmModeGetConnector{
		ConnectorID:   id,
		ModesPtr:      ptr(modes),
		CountModes:    uint32(len(modes)),
		PropsPtr:      ptr(props),
		PropValuesPtr: ptr(values),
		CountProps:    uint32(len(props)),
		EncodersPtr:   ptr(encoders),
		CountEncoders: uint32(len(encoders)),
	}
	err := c.ioctl(ioctlModeGetConnector, unsafe.Pointer(&arg))
	runtime.KeepAlive(modes)
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	runtime.KeepAlive(encoders)
	if err != nil {
		return nil, fmt.Errorf("get connector %d: %w", id, err)
	}

	return &connectorInfo{
		ID:        id,
		Connected: arg.Connection == connectorConnected,
		Modes:     modes[:min(len(modes), int(arg.CountModes))],
	}, nil
}

func (c *fdCard) Planes() ([]uint32, error) {
	var res drmModeGetPlaneRes
	if err := c.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&res)); err != nil {
		return nil, fmt.Errorf("get plane resources: %w", err)
	}
	planes := make([]uint32, res.CountPlanes)
	res = drmModeGetPlaneRes{PlaneIDPtr: ptr(planes), CountPlanes: uint32(len(planes))}
	err := c.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&res))
	runtime.KeepAlive(planes)
	if err != nil {
		return nil, fmt.Errorf("get plane resources: %w", err)
	}
	return planes[:min(len(planes), int(res.CountPlanes))], nil
}

func (c *fdCard) PropertyID(obj, objType uint32, name string) (uint32, error) {
	arg := drmModeObjGetProperties{ObjID: obj, ObjType: objType}
	if err := c.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("get properties of object %d: %w", obj, err)
	}
	props := make([]uint32, arg.CountProps)
	values := make([]uint64, arg.CountProps)
	arg = drmModeObjGetProperties{
		ObjID:         obj,
		ObjType:       objType,
		PropsPtr:      ptr(props),
		PropValuesPtr: ptr(values),
		CountProps:    uint32(len(props)),
	}
	err := c.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&arg))
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	if err != nil {
		return 0, fmt.Errorf("get properties of object %d: %w", obj, err)
	}

	for _, id := range props[:min(len(props), int(arg.CountProps))] {
		prop := drmModeGetProperty{PropID: id}
		if err := c.ioctl(ioctlModeGetProperty, unsafe.Pointer(&prop)); err != nil {
			return 0, fmt.Errorf("get property %d: %w", id, err)
		}
		if cString(prop.Name[:]) == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %s on object %d", ErrPropertyNotFound, name, obj)
}

func (c *fdCard) CreateModeBlob(mode drmModeInfo) (uint32, error) {
	arg := drmModeCreateBlob{
		Data:   uint64(uintptr(unsafe.Pointer(&mode))),
		Length: uint32(unsafe.Sizeof(mode)),
	}
	err := c.ioctl(ioctlModeCreatePropBlb, unsafe.Pointer(&arg))
	runtime.KeepAlive(&mode)
	if err != nil {
		return 0, fmt.Errorf("create mode blob: %w", err)
	}
	return arg.BlobID, nil
}

func (c *fdCard) CreateDumb(width, height, bpp uint32) (dumbBuffer, error) {
	arg := drmModeCreateDumb{Width: width, Height: height, BPP: bpp}
	if err := c.ioctl(ioctlModeCreateDumb, unsafe.Pointer(&arg)); err != nil {
		return dumbBuffer{}, fmt.Errorf("create dumb buffer: %w", err)
	}
	return dumbBuffer{Handle: arg.Handle, Pitch: arg.Pitch, Size: arg.Size}, nil
}

func (c *fdCard) AddFB(width, height uint32, buf dumbBuffer, depth, bpp uint32) (uint32, error) {
	arg := drmModeFBCmd{
		Width:  width,
		Height: height,
		Pitch:  buf.Pitch,
		BPP:    bpp,
		Depth:  depth,
		Handle: buf.Handle,
	}
	if err := c.ioctl(ioctlModeAddFB, unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("add framebuffer: %w", err)
	}
	return arg.FBID, nil
}

func (c *fdCard) AtomicCommit(props []atomicProp, flags uint32) error {
	// The kernel wants properties grouped per object.
	var (
		objs   []uint32
		counts []uint32
		ids    []uint32
		values []uint64
	)
	for _, p := range props {
		if len(objs) == 0 || objs[len(objs)-1] != p.Object {
			objs = append(objs, p.Object)
			counts = append(counts, 0)
		}
		counts[len(counts)-1]++
		ids = append(ids, p.Property)
		values = append(values, p.Value)
	}

	arg := drmModeAtomic{
		Flags:         flags,
		CountObjs:     uint32(len(objs)),
		ObjsPtr:       ptr(objs),
		CountPropsPtr: ptr(counts),
		PropsPtr:      ptr(ids),
		PropValuesPtr: ptr(values),
	}
	err := c.ioctl(ioctlModeAtomic, unsafe.Pointer(&arg))
	runtime.KeepAlive(objs)
	runtime.KeepAlive(counts)
	runtime.KeepAlive(ids)
	runtime.KeepAlive(values)
	if err != nil {
		return fmt.Errorf("atomic commit: %w", err)
	}
	return nil
}

func (c *fdCard) MapDumb(buf dumbBuffer) ([]byte, error) {
	arg := drmModeMapDumb{Handle: buf.Handle}
	if err := c.ioctl(ioctlModeMapDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("map dumb buffer: %w", err)
	}
	mem, err := unix.Mmap(int(c.f.Fd()), int64(arg.Offset), int(buf.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap dumb buffer: %w", err)
	}
	return mem, nil
}

func (c *fdCard) Unmap(mem []byte) error {
	return unix.Munmap(mem)
}

func (c *fdCard) DirtyFB(fb uint32, clips []drmClipRect) error {
	arg := drmModeFBDirtyCmd{
		FBID:     fb,
		NumClips: uint32(len(clips)),
		ClipsPtr: ptr(clips),
	}
	err := c.ioctl(ioctlModeDirtyFB, unsafe.Pointer(&arg))
	runtime.KeepAlive(clips)
	// Drivers without dirty tracking scan out continuously.
	if errors.Is(err, unix.ENOSYS) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dirty framebuffer: %w", err)
	}
	return nil
}

func (c *fdCard) RmFB(fb uint32) error {
	id := fb
	if err := c.ioctl(ioctlModeRmFB, unsafe.Pointer(&id)); err != nil {
		return fmt.Errorf("remove framebuffer %d: %w", fb, err)
	}
	return nil
}

func (c *fdCard) DestroyBlob(id uint32) error {
	arg := drmModeDestroyBlob{BlobID: id}
	if err := c.ioctl(ioctlModeDestroyPropBl, unsafe.Pointer(&arg)); err != nil {
		return fmt.Errorf("destroy mode blob %d: %w", id, err)
	}
	return nil
}

func (c *fdCard) DestroyDumb(handle uint32) error {
	arg := drmModeDestroyDumb{Handle: handle}
	if err := c.ioctl(ioctlModeDestroyDumb, unsafe.Pointer(&arg)); err != nil {
		return fmt.Errorf("destroy dumb buffer %d: %w", handle, err)
	}
	return nil
}

func (c *fdCard) Close() error {
	return c.f.Close()
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
