package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"planoflife/api/internal/store"
)

type fakeUserStore struct {
	users       map[string]store.User // keyed by email
	resets      map[string]string     // token -> user id
	verified    []string
	resetMarked []string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:  make(map[string]store.User),
		resets: make(map[string]string),
	}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := f.users[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	if _, exists := f.users[user.Email]; exists {
		return errors.New("duplicate email")
	}
	f.users[user.Email] = user
	return nil
}

func (f *fakeUserStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	for email, user := range f.users {
		if user.ID == userID {
			user.VerificationToken = token
			f.users[email] = user
		}
	}
	return nil
}

func (f *fakeUserStore) VerifyUserEmail(_ context.Context, token string) error {
	for email, user := range f.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[email] = user
			f.verified = append(f.verified, email)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	for email, user := range f.users {
		if user.ID == userID {
			user.PasswordHash = passwordHash
			f.users[email] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeUserStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.resets[token] = userID
	return nil
}

func (f *fakeUserStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeUserStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	delete(f.resets, token)
	f.resetMarked = append(f.resetMarked, token)
	return nil
}

func TestSignUpCreatesUnverifiedUser(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)

	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "Maria@Example.com",
		Password:    "longenough",
		DisplayName: "Maria",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if resp.UserID == "" || resp.VerificationToken == "" || !resp.RequiresEmailVerify {
		t.Errorf("unexpected response: %+v", resp)
	}

	user, ok := fs.users["maria@example.com"]
	if !ok {
		t.Fatal("expected email to be lowercased")
	}
	if user.IsEmailVerified {
		t.Error("new user should not be verified")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("longenough")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	if _, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "a@b.c",
		Password:    "short",
		DisplayName: "A",
	}); err == nil {
		t.Error("expected error for short password")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	req := SignUpRequest{Email: "a@b.c", Password: "longenough", DisplayName: "A"}
	if _, err := svc.SignUp(context.Background(), req); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, err := svc.SignUp(context.Background(), req); err == nil {
		t.Error("expected duplicate email to be rejected")
	}
}

func TestSignInFlowsThroughVerification(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "longenough", DisplayName: "A"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	signIn, err := svc.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "longenough"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !signIn.RequiresVerify {
		t.Fatal("expected verification gate before first sign-in")
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	signIn, err = svc.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "longenough"})
	if err != nil {
		t.Fatalf("SignIn after verify failed: %v", err)
	}
	if signIn.RequiresVerify {
		t.Error("verified user should not be gated")
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "wrongpassword"}); err == nil {
		t.Error("expected wrong password to fail")
	}
}

func TestRequestPasswordResetHidesUnknownEmails(t *testing.T) {
	svc := NewService(newFakeUserStore())
	token, err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if token != "" {
		t.Error("expected empty token for unknown email")
	}
}

func TestResetPassword(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "longenough", DisplayName: "A"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "a@b.c")
	if err != nil || token == "" {
		t.Fatalf("RequestPasswordReset failed: token=%q err=%v", token, err)
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "evenlongerone"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if len(fs.resetMarked) != 1 {
		t.Error("expected reset token to be marked used")
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@b.c", Password: "evenlongerone"}); err != nil {
		t.Errorf("SignIn with new password failed: %v", err)
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "anotherlongpw"}); err == nil {
		t.Error("expected used token to be rejected")
	}
}
