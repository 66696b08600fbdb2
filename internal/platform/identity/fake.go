package identity

import (
	"context"
	"sync"
)

// FakeProvider is a test-only in-memory Provider. Accounts are scripted up
// front and error fields allow behavior injection per operation.
type FakeProvider struct {
	dispatchMu sync.Mutex

	mu        sync.Mutex
	accounts  map[string]fakeAccount // keyed by email
	deleted   []string
	listeners map[int]func(*Principal)
	nextID    int
	current   *Principal

	OAuthPrincipal *Principal // returned by SignInWithOAuthPopup
	SignInErr      error
	OAuthErr       error
	CreateErr      error
	ResetErr       error
	SignOutErr     error
	DeleteErr      error

	ResetRequests []string
}

type fakeAccount struct {
	principal Principal
	password  string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		accounts:  make(map[string]fakeAccount),
		listeners: make(map[int]func(*Principal)),
	}
}

// AddAccount scripts a password account.
func (f *FakeProvider) AddAccount(uid, email, password, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = fakeAccount{
		principal: Principal{UID: uid, Email: email, DisplayName: displayName},
		password:  password,
	}
}

// EmitSession simulates an externally driven session transition, such as
// the startup restore or an expiry.
func (f *FakeProvider) EmitSession(p *Principal) {
	f.dispatch(p)
}

// Deleted returns the UIDs removed via DeletePrincipal.
func (f *FakeProvider) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *FakeProvider) OnSessionChange(fn func(*Principal)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*Principal, error) {
	f.mu.Lock()
	if f.SignInErr != nil {
		err := f.SignInErr
		f.mu.Unlock()
		return nil, err
	}
	acc, ok := f.accounts[email]
	f.mu.Unlock()

	if !ok {
		return nil, ErrAccountNotFound
	}
	if acc.password != password {
		return nil, ErrInvalidCredentials
	}
	p := acc.principal
	f.dispatch(&p)
	return &p, nil
}

func (f *FakeProvider) SignInWithOAuthPopup(ctx context.Context) (*Principal, error) {
	f.mu.Lock()
	err := f.OAuthErr
	principal := f.OAuthPrincipal
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, ErrPopupCancelled
	}
	p := *principal
	f.dispatch(&p)
	return &p, nil
}

func (f *FakeProvider) CreateAccount(ctx context.Context, email, password string) (*Principal, error) {
	f.mu.Lock()
	if f.CreateErr != nil {
		err := f.CreateErr
		f.mu.Unlock()
		return nil, err
	}
	if _, ok := f.accounts[email]; ok {
		f.mu.Unlock()
		return nil, ErrAccountExists
	}
	if len(password) < 6 {
		f.mu.Unlock()
		return nil, ErrWeakCredential
	}
	p := Principal{UID: "uid-" + email, Email: email}
	f.accounts[email] = fakeAccount{principal: p, password: password}
	f.mu.Unlock()

	f.dispatch(&p)
	return &p, nil
}

func (f *FakeProvider) SendPasswordReset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResetErr != nil {
		return f.ResetErr
	}
	if _, ok := f.accounts[email]; !ok {
		return ErrAccountNotFound
	}
	f.ResetRequests = append(f.ResetRequests, email)
	return nil
}

func (f *FakeProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	err := f.SignOutErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	f.dispatch(nil)
	return nil
}

func (f *FakeProvider) DeletePrincipal(ctx context.Context, uid string) error {
	f.mu.Lock()
	if f.DeleteErr != nil {
		err := f.DeleteErr
		f.mu.Unlock()
		return err
	}
	f.deleted = append(f.deleted, uid)
	for email, acc := range f.accounts {
		if acc.principal.UID == uid {
			delete(f.accounts, email)
		}
	}
	wasCurrent := f.current != nil && f.current.UID == uid
	f.mu.Unlock()

	if wasCurrent {
		f.dispatch(nil)
	}
	return nil
}

// dispatch mirrors the real client: the dispatch mutex is held while
// listeners run so deliveries never overlap.
func (f *FakeProvider) dispatch(p *Principal) {
	f.dispatchMu.Lock()
	defer f.dispatchMu.Unlock()

	f.mu.Lock()
	f.current = p
	fns := make([]func(*Principal), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}
