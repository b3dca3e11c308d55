// Package alm implements the App Lifecycle Manager: start/stop/erase
// batch operations over the app image region, grounded on the teacher's
// ctrl.Controller (internal/ctrl/control.go) - AddDevice/StartDevice/
// StopDevice/DeleteDevice play the role StartApps/StopApps/EraseApps
// play here, including the extensive structured debug logging around
// each step.
package alm

import (
	"github.com/seoshub/seos/internal/appimage"
	"github.com/seoshub/seos/internal/seosif"
	"github.com/seoshub/seos/internal/tasktable"
)

// AnyVendor and AnySeq are the wildcard sentinels for AppSelector fields.
const (
	AnyVendor uint64 = 0xFFFFFFFFFF
	AnySeq    uint32 = 0xFFFFFF
)

// AppSelector identifies a set of App IDs; either field may be the
// wildcard sentinel.
type AppSelector struct {
	Vendor uint64
	SeqID  uint32
}

// SelectorAny matches every App ID (APP_ID_ANY in the spec's scenarios).
var SelectorAny = AppSelector{Vendor: AnyVendor, SeqID: AnySeq}

// SelectorForAppID builds a selector matching exactly one concrete App ID.
func SelectorForAppID(appID uint64) AppSelector {
	return AppSelector{Vendor: appID >> 24, SeqID: uint32(appID & 0xFFFFFF)}
}

// Matches reports whether appID satisfies the selector.
func (s AppSelector) Matches(appID uint64) bool {
	vendor := appID >> 24
	seq := uint32(appID & 0xFFFFFF)
	return (s.Vendor == AnyVendor || vendor == s.Vendor) &&
		(s.SeqID == AnySeq || seq == s.SeqID)
}

// InternalApp describes a host-provided, boot-time-only app: its marker
// is always INTERNAL and it never lives in the flash-shared region.
type InternalApp struct {
	AppID   uint64
	Payload []byte
}

// Manager implements start_apps/stop_apps/erase_apps over a flash-shared
// region, a task table, and an App Host.
type Manager struct {
	region   *appimage.MemRegion
	tt       *tasktable.Table
	host     seosif.AppHost
	logger   seosif.Logger
	observer seosif.Observer
	nextTID  int32
}

// New creates a Manager over the given collaborators.
func New(region *appimage.MemRegion, tt *tasktable.Table, host seosif.AppHost, logger seosif.Logger, observer seosif.Observer) *Manager {
	return &Manager{region: region, tt: tt, host: host, logger: logger, observer: observer, nextTID: 1}
}

// allocTID assigns a fresh TID from a rotating counter that skips any
// value currently held by a live task (spec §3/GLOSSARY: "assigned
// round-robin skipping in-use values"). The loop is bounded by the task
// table's capacity plus one: at most that many TIDs can be in use at
// once, so by the pigeonhole principle a free one is found well before
// the bound is reached - the counter only wraps past a handful of
// in-use values after it has rotated through the full int32 range.
func (m *Manager) allocTID() int32 {
	for i := 0; i <= m.tt.Capacity(); i++ {
		tid := m.nextTID
		m.nextTID++
		if m.nextTID <= 0 {
			m.nextTID = 1
		}
		if tid != 0 && m.tt.FindByTID(tid) == nil {
			return tid
		}
	}
	return 0
}

// LoadInternalApps loads the host-provided boot-time app list. Each app
// must have a unique App ID; a duplicate against an already-loaded
// internal app is rejected with a warning, not an error (spec §4.5).
func (m *Manager) LoadInternalApps(apps []InternalApp) {
	seen := make(map[uint64]bool, len(apps))
	for _, a := range apps {
		if seen[a.AppID] {
			m.logger.Warn("duplicate internal app rejected", "app_id", a.AppID)
			continue
		}
		seen[a.AppID] = true

		handle, err := m.host.Load(a.AppID, a.Payload)
		if err != nil {
			m.logger.Warn("internal app load failed", "app_id", a.AppID, "err", err)
			continue
		}
		if err := m.host.Start(handle); err != nil {
			m.logger.Warn("internal app start failed", "app_id", a.AppID, "err", err)
			continue
		}
		hdr := appimage.Header{FormatVersion: appimage.CurrentFormatVersion, Marker: appimage.MarkerInternal, AppID: a.AppID}
		m.tt.Add(m.allocTID(), &hdr, handle)
		m.logger.Debug("internal app loaded", "app_id", a.AppID)
	}
}

// StopApps stops every live task whose app image matches sel and whose
// frame marker is still VALID.
func (m *Manager) StopApps(sel AppSelector) MgmtStatus {
	var b mgmtStatusBuilder
	for _, e := range appimage.ValidEntries(m.region.Bytes()) {
		if !sel.Matches(e.Header.AppID) {
			continue
		}
		b.incrApp()
		m.stopOne(e, &b)
	}
	m.logger.Debug("stop_apps complete", "vendor", sel.Vendor, "seq", sel.SeqID)
	return b.build()
}

func (m *Manager) stopOne(e appimage.Entry, b *mgmtStatusBuilder) {
	task, ok := m.tt.FindByAppID(e.Header.AppID)
	if !ok {
		return
	}
	b.incrTask()
	if m.host.Stop(task.Host) != nil {
		m.logger.Warn("app host failed to stop app", "app_id", e.Header.AppID)
		return
	}
	if m.host.Unload(task.Host) != nil {
		m.logger.Warn("app host failed to unload app", "app_id", e.Header.AppID)
		return
	}
	m.tt.Remove(task.TID)
	b.incrOp()
	m.observer.ObserveAppStopped(1)
}

// EraseApps stops matching apps, then flips their frame markers to
// DELETED via the protected-region writer.
func (m *Manager) EraseApps(sel AppSelector) MgmtStatus {
	var b mgmtStatusBuilder
	for _, e := range appimage.ValidEntries(m.region.Bytes()) {
		if !sel.Matches(e.Header.AppID) {
			continue
		}
		b.incrApp()
		m.stopOne(e, &b)
		if m.region.SetMarker(e.Offset, appimage.MarkerDeleted) {
			b.incrErase()
			m.observer.ObserveAppErased(1)
		}
	}
	m.logger.Debug("erase_apps complete", "vendor", sel.Vendor, "seq", sel.SeqID)
	return b.build()
}

// StartApps loads the most recent valid frame for each distinct App ID
// matching sel, erasing earlier duplicates, and starts it unless a live
// task already hosts that App ID.
func (m *Manager) StartApps(sel AppSelector) MgmtStatus {
	var b mgmtStatusBuilder
	entries := appimage.ValidEntries(m.region.Bytes())

	processed := make(map[uint64]bool)
	for _, e := range entries {
		if !sel.Matches(e.Header.AppID) {
			continue
		}
		b.incrApp()
	}
	for _, e := range entries {
		if !sel.Matches(e.Header.AppID) || processed[e.Header.AppID] {
			continue
		}
		processed[e.Header.AppID] = true
		m.startOne(e.Header.AppID, entries, &b)
	}
	m.logger.Debug("start_apps complete", "vendor", sel.Vendor, "seq", sel.SeqID)
	return b.build()
}

func (m *Manager) startOne(appID uint64, entries []appimage.Entry, b *mgmtStatusBuilder) {
	var group []appimage.Entry
	for _, e := range entries {
		if e.Header.AppID == appID {
			group = append(group, e)
		}
	}
	latest := group[len(group)-1]
	for _, dup := range group[:len(group)-1] {
		if m.region.SetMarker(dup.Offset, appimage.MarkerDeleted) {
			b.incrErase()
			m.observer.ObserveAppErased(1)
		}
	}

	b.incrTask()
	if _, exists := m.tt.FindByAppID(appID); exists {
		return
	}

	handle, err := m.host.Load(latest.Header.AppID, latest.Frame.Payload)
	if err != nil {
		m.logger.Warn("app host failed to load app", "app_id", appID, "err", err)
		return
	}
	if err := m.host.Start(handle); err != nil {
		m.logger.Warn("app host failed to start app", "app_id", appID, "err", err)
		_ = m.host.Unload(handle)
		return
	}
	hdr := latest.Header
	if _, ok := m.tt.Add(m.allocTID(), &hdr, handle); !ok {
		m.logger.Warn("task table full, app not started", "app_id", appID)
		_ = m.host.Stop(handle)
		_ = m.host.Unload(handle)
		return
	}
	b.incrOp()
	m.observer.ObserveAppStarted(1)
}
