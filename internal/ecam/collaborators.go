package ecam

import (
	"context"
	"fmt"
	"time"

	log "github.com/golang/glog"

	"github.com/mczaj/edk2-platforms/pcibus"
)

// StaticLocateService resolves to a fixed IOMMU, DevicePathBuilder, and
// ReadySignal chosen at construction time, standing in for a real
// lookup-by-GUID service locator.
type StaticLocateService struct {
	IOMMU    pcibus.IOMMU
	DevPaths pcibus.DevicePathBuilder
	Ready    pcibus.ReadySignal
}

func (s *StaticLocateService) LocateIOMMU() (pcibus.IOMMU, error) {
	if s.IOMMU == nil {
		return nil, fmt.Errorf("no IOMMU registered")
	}
	return s.IOMMU, nil
}

func (s *StaticLocateService) LocateDevicePathBuilder() (pcibus.DevicePathBuilder, error) {
	if s.DevPaths == nil {
		return nil, fmt.Errorf("no device path builder registered")
	}
	return s.DevPaths, nil
}

func (s *StaticLocateService) LocateReadySignal() (pcibus.ReadySignal, error) {
	if s.Ready == nil {
		return nil, fmt.Errorf("no ready signal registered")
	}
	return s.Ready, nil
}

// RealTimer sleeps for real, for use against actual hardware.
type RealTimer struct{}

func (RealTimer) SleepMicroseconds(ctx context.Context, us uint64) {
	select {
	case <-time.After(time.Duration(us) * time.Microsecond):
	case <-ctx.Done():
	}
}

// FakeTimer never actually sleeps, so PollMem/PollIo-driven tests run at
// full speed; it still counts how many ticks were requested so a test can
// assert a poll actually retried before timing out.
type FakeTimer struct {
	Ticks int
}

func (t *FakeTimer) SleepMicroseconds(ctx context.Context, us uint64) {
	t.Ticks++
}

// SimpleDevicePathBuilder builds a one-node device path per SBDF, enough
// to exercise DeviceFacade publication without a platform-specific device
// path library.
type SimpleDevicePathBuilder struct{}

func (SimpleDevicePathBuilder) Build(sbdf pcibus.SBDF) (pcibus.DevicePath, error) {
	return pcibus.DevicePath{
		Segments: []pcibus.PCIDevicePathNode{{Device: sbdf.Device, Function: sbdf.Func}},
	}, nil
}

// LogReadySignal publishes the "PCI devices ready" terminator notification
// as a single log line, standing in for installing a real PPI/protocol
// other boot phases can depend on.
type LogReadySignal struct{}

func (LogReadySignal) PublishPciDevicesReady() error {
	log.Infof("ecam: PCI devices ready")
	return nil
}
