// Package terminal is the checkout flow of one tablet: operator session,
// cached catalog and recording sales locally before any upload.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clawpos/internal/connectivity"
	"clawpos/internal/dto"
	"clawpos/internal/localstore"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrNotLoggedIn    = errors.New("no operator logged in")
	ErrSessionExpired = errors.New("session expired, log in again")
	ErrUnknownProduct = errors.New("product not in local catalog")
	ErrOffline        = errors.New("server unreachable")
)

// Remote is the server API the terminal uses.
type Remote interface {
	Login(ctx context.Context, username, password string) (*dto.LoginResponse, error)
	SetAuthToken(token string)
	FetchCatalog(ctx context.Context) ([]dto.ProductResponse, error)
	CreateSale(ctx context.Context, sale localstore.Sale) (*dto.SaleResponse, error)
}

// Connectivity reports whether the server is reachable right now.
type Connectivity interface {
	Online() bool
}

// Line is one product scanned at checkout.
type Line struct {
	ProductID string
	Quantity  int
}

// Receipt is the outcome of a checkout. Uploaded is false when the sale only
// sits in the local queue.
type Receipt struct {
	Sale     *localstore.Sale
	Uploaded bool
}

type Terminal struct {
	store  *localstore.Store
	remote Remote
	conn   Connectivity
	now    func() time.Time
}

func New(store *localstore.Store, remote Remote, conn Connectivity) *Terminal {
	return &Terminal{store: store, remote: remote, conn: conn, now: time.Now}
}

// Resume loads the saved session and installs its token on the remote. An
// expired session is still returned together with ErrSessionExpired: the
// operator keeps selling offline, only uploads wait for a new login.
func (t *Terminal) Resume(ctx context.Context) (*localstore.DeviceSession, error) {
	sess, err := t.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	if t.expired(sess) {
		return sess, ErrSessionExpired
	}
	t.remote.SetAuthToken(sess.Token)
	return sess, nil
}

// CanUpload reloads the saved session and reports whether its token is still
// valid, installing it on the remote when it is. Another process may have
// logged in since this one started.
func (t *Terminal) CanUpload(ctx context.Context) bool {
	sess, err := t.store.Session(ctx)
	if err != nil || sess == nil || sess.Token == "" || t.expired(sess) {
		return false
	}
	t.remote.SetAuthToken(sess.Token)
	return true
}

func (t *Terminal) expired(sess *localstore.DeviceSession) bool {
	return !sess.ExpiresAt.IsZero() && t.now().After(sess.ExpiresAt)
}

// Login authenticates against the server and saves the session on the device.
func (t *Terminal) Login(ctx context.Context, username, password string) (*localstore.DeviceSession, error) {
	if !t.conn.Online() {
		return nil, ErrOffline
	}
	res, err := t.remote.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	sess := localstore.DeviceSession{
		UserID:    res.User.ID,
		Username:  res.User.Username,
		Role:      res.User.Role,
		Token:     res.Token,
		ExpiresAt: t.now().Add(time.Duration(res.ExpiresIn) * time.Second),
	}
	if err := t.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	t.remote.SetAuthToken(res.Token)
	log.Info().Str("username", sess.Username).Str("role", sess.Role).Msg("operator logged in")
	return &sess, nil
}

// Logout forgets the session. Queued sales are kept and still sync later
// under the next operator's token.
func (t *Terminal) Logout(ctx context.Context) error {
	t.remote.SetAuthToken("")
	return t.store.ClearSession(ctx)
}

// RefreshCatalog downloads the catalog and replaces the local copy.
func (t *Terminal) RefreshCatalog(ctx context.Context) (int, error) {
	if !t.conn.Online() {
		return 0, ErrOffline
	}
	products, err := t.remote.FetchCatalog(ctx)
	if err != nil {
		return 0, err
	}
	cached := make([]localstore.CachedProduct, 0, len(products))
	for _, p := range products {
		cp := localstore.CachedProduct{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Active:   p.Active,
		}
		if p.SKU != nil {
			cp.SKU = *p.SKU
		}
		cached = append(cached, cp)
	}
	if err := t.store.SaveProducts(ctx, cached); err != nil {
		return 0, err
	}
	return len(cached), nil
}

// Attach refreshes the product cache on every offline to online transition
// of m. Without a usable session the refresh is skipped.
func (t *Terminal) Attach(ctx context.Context, m *connectivity.Monitor) (detach func()) {
	return m.OnTransition(func(from, to connectivity.Status) {
		if from == connectivity.Offline && to == connectivity.Online {
			go t.refreshOnReconnect(ctx)
		}
	})
}

func (t *Terminal) refreshOnReconnect(ctx context.Context) {
	if !t.CanUpload(ctx) {
		log.Debug().Msg("no valid session, catalog refresh skipped")
		return
	}
	n, err := t.RefreshCatalog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("catalog refresh after reconnect failed")
		return
	}
	log.Info().Int("products", n).Msg("catalog refreshed after reconnect")
}

// Checkout prices lines from the cached catalog and records the sale locally
// under the saved operator, whether or not the session token has expired.
// When the server is reachable and the token valid it also tries to upload
// the sale at once; a failed upload leaves it queued for the sync engine and
// is not an error. An error means the sale was not recorded.
func (t *Terminal) Checkout(ctx context.Context, lines []Line, paymentMethod string) (*Receipt, error) {
	sess, err := t.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	items := make([]localstore.Item, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		p, found, err := t.store.Product(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if !found || !p.Active {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductID)
		}
		items = append(items, localstore.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	sale, err := t.store.CreateSale(ctx, localstore.NewSale{
		Items:         items,
		PaymentMethod: paymentMethod,
		Total:         total,
		Cashier:       sess.Username,
	})
	if err != nil {
		return nil, err
	}
	rcpt := &Receipt{Sale: sale}

	if !t.conn.Online() || !t.CanUpload(ctx) {
		return rcpt, nil
	}
	res, err := t.remote.CreateSale(ctx, *sale)
	if err != nil {
		log.Warn().Err(err).Str("client_id", sale.ClientID).Msg("immediate upload failed, sale queued")
		return rcpt, nil
	}
	if err := t.store.MarkSynced(ctx, sale.ClientID, res.SaleNumber); err != nil {
		log.Error().Err(err).Str("client_id", sale.ClientID).Msg("mark synced after upload")
		return rcpt, nil
	}
	sale.Synced = true
	sale.SaleNumber = res.SaleNumber
	rcpt.Uploaded = true
	return rcpt, nil
}
