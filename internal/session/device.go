package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/cache"
)

// DeviceCookieName identifies the browser that owns a local slot.
const DeviceCookieName = "device_id"

const deviceCookieMaxAge = 365 * 24 * time.Hour

type deviceIDKey struct{}

// DeviceIDFromContext returns the device id set by the Device middleware.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey{}).(string)
	return id, ok && id != ""
}

// WithDeviceID returns a copy of ctx carrying id.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey{}, id)
}

// Device ensures every request carries a device id, issuing a new device_id
// cookie when the request has none or a malformed one.
func Device(opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(DeviceCookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(deviceCookieMaxAge / time.Second),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), id)))
		})
	}
}

// DeviceStorage is a Storage slot kept in the cache under the device id.
// Values never expire.
type DeviceStorage struct {
	cache    cache.Cache
	deviceID string
}

// NewDeviceStorage returns the local slot for deviceID.
func NewDeviceStorage(c cache.Cache, deviceID string) *DeviceStorage {
	return &DeviceStorage{cache: c, deviceID: deviceID}
}

func (d *DeviceStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := d.cache.Get(ctx, cache.DeviceStorageKey(d.deviceID, key))
	if err != nil || !ok {
		return "", false, err
	}
	return string(v), true, nil
}

func (d *DeviceStorage) Set(ctx context.Context, key, value string) error {
	return d.cache.Set(ctx, cache.DeviceStorageKey(d.deviceID, key), []byte(value), 0)
}

func (d *DeviceStorage) Remove(ctx context.Context, key string) error {
	return d.cache.Delete(ctx, cache.DeviceStorageKey(d.deviceID, key))
}

// Manager builds a per-request Store.
type Manager struct {
	cache cache.Cache
	opts  CookieOptions
}

// NewManager creates a Manager whose local slots live in c.
func NewManager(c cache.Cache, opts CookieOptions) *Manager {
	return &Manager{cache: c, opts: opts}
}

// For returns the Store for the request's device. Requests without a device
// id get a server-context Store.
func (m *Manager) For(w http.ResponseWriter, r *http.Request) *Store {
	id, ok := DeviceIDFromContext(r.Context())
	if !ok {
		return NewServer(w, m.opts)
	}
	return New(NewDeviceStorage(m.cache, id), w, m.opts)
}
