package notify

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"confsched/internal/apperr"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyIface = "org.freedesktop.Notifications"
)

// DBus shows notifications through the freedesktop notification service on
// the session bus.
type DBus struct {
	appName string

	mu   sync.Mutex
	conn *dbus.Conn
	// ids maps a tag to the server id of its last notification, passed as
	// replaces_id so a re-fired tag updates in place.
	ids map[string]uint32
}

func NewDBus(appName string) *DBus {
	return &DBus{appName: appName, ids: map[string]uint32{}}
}

func (d *DBus) object() (dbus.BusObject, error) {
	if d.conn == nil {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, apperr.E(apperr.KindUnsupported, "connect session bus", "", err)
		}
		d.conn = conn
	}
	return d.conn.Object(notifyDest, notifyPath), nil
}

func (d *DBus) Notify(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, err := d.object()
	if err != nil {
		return err
	}

	call := obj.CallWithContext(ctx, notifyIface+".Notify", 0,
		d.appName,          // app_name
		d.ids[n.Tag],       // replaces_id
		"appointment-soon", // app_icon
		n.Title,            // summary
		n.Body,             // body
		[]string{},         // actions
		map[string]dbus.Variant{ // hints
			"urgency":  dbus.MakeVariant(byte(1)),
			"category": dbus.MakeVariant("x-confsched.reminder"),
		},
		int32(-1), // expire_timeout (server default)
	)
	if call.Err != nil {
		d.reset()
		return apperr.E(apperr.KindUnsupported, "send notification", "", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err == nil {
		d.ids[n.Tag] = id
	}
	return nil
}

// Probe asks the notification server for its capabilities.
func (d *DBus) Probe(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, err := d.object()
	if err != nil {
		return err
	}
	var caps []string
	if err := obj.CallWithContext(ctx, notifyIface+".GetCapabilities", 0).Store(&caps); err != nil {
		d.reset()
		return apperr.E(apperr.KindPermissionDenied, "probe notifications", "no notification service on the session bus", err)
	}
	return nil
}

func (d *DBus) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// reset drops the connection so the next call reconnects.
func (d *DBus) reset() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}
