package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/auth"
	authPostgres "github.com/frahmantamala/rbac-admin/internal/auth/postgres"
	sessionDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/internal/session"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Module Suite")
}

const testSecret = "0123456789abcdef0123456789abcdef"

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type createdSession struct {
	owner     session.Owner
	jti       string
	expiresAt time.Time
	meta      session.ClientMeta
}

type revokeCall struct {
	username, jti, actor, reason string
}

// fakeSessions stands in for the session service.
type fakeSessions struct {
	created     []createdSession
	revoked     []revokeCall
	validateErr error
	createErr   error
}

func (f *fakeSessions) Create(ctx context.Context, owner session.Owner, jti string, expiresAt time.Time, meta session.ClientMeta) (*sessionDatamodel.UserSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createdSession{owner: owner, jti: jti, expiresAt: expiresAt, meta: meta})
	return &sessionDatamodel.UserSession{UserID: owner.ID, Username: owner.Username, JTI: jti}, nil
}

func (f *fakeSessions) Validate(ctx context.Context, username, jti string) error {
	return f.validateErr
}

func (f *fakeSessions) RevokeByJTI(ctx context.Context, username, jti, actor, reason string) (bool, error) {
	f.revoked = append(f.revoked, revokeCall{username: username, jti: jti, actor: actor, reason: reason})
	return true, nil
}

func openDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	Expect(err).NotTo(HaveOccurred())
	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)
	DeferCleanup(sqlDB.Close)

	Expect(db.AutoMigrate(&user.User{}, &user.Role{}, &user.UserRole{}, &user.Menu{}, &user.RoleMenu{})).To(Succeed())
	return db
}

func seedUsers(db *gorm.DB) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	Expect(err).NotTo(HaveOccurred())

	Expect(db.Create(&[]user.User{
		{ID: 1, Username: "admin", PasswordHash: string(hash), RealName: "Admin", IsActive: true},
		{ID: 2, Username: "alice", PasswordHash: string(hash), RealName: "Alice", IsActive: true},
		{ID: 3, Username: "mallory", PasswordHash: string(hash), RealName: "Mallory", IsActive: false},
	}).Error).To(Succeed())
	Expect(db.Create(&[]user.Role{
		{ID: 1, Code: "super", Name: "Super", Status: user.RoleStatusEnabled, DataScope: "all"},
		{ID: 2, Code: "auditor", Name: "Auditor", Status: user.RoleStatusEnabled, DataScope: "dept"},
		{ID: 3, Code: "retired", Name: "Retired", Status: user.RoleStatusDisabled, DataScope: "all"},
	}).Error).To(Succeed())
	Expect(db.Create(&[]user.UserRole{
		{UserID: 1, RoleID: 1},
		{UserID: 2, RoleID: 2},
		{UserID: 2, RoleID: 3},
	}).Error).To(Succeed())
	Expect(db.Create(&[]user.Menu{
		{ID: 1, Name: "Sessions", AuthCode: auth.PermSessionList, Status: user.MenuStatusEnabled},
		{ID: 2, Name: "Kick", AuthCode: auth.PermSessionKick, Status: user.MenuStatusEnabled},
		{ID: 3, Name: "Directory", AuthCode: "", Status: user.MenuStatusEnabled},
		{ID: 4, Name: "Notice", AuthCode: auth.PermNoticeSend, Status: user.MenuStatusDisabled},
	}).Error).To(Succeed())
	Expect(db.Create(&[]user.RoleMenu{
		{RoleID: 2, MenuID: 1},
		{RoleID: 2, MenuID: 3},
		{RoleID: 2, MenuID: 4},
		{RoleID: 3, MenuID: 2},
	}).Error).To(Succeed())
}

var _ = Describe("TokenCodec", func() {
	var codec *auth.TokenCodec

	BeforeEach(func() {
		codec = auth.NewTokenCodec(testSecret)
	})

	It("round-trips subject, roles and jti", func() {
		issued, err := codec.Issue("alice", []string{"auditor"}, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(issued.JTI).To(MatchRegexp(`^[0-9a-f]{32}$`))
		Expect(issued.ExpiresAt.Sub(issued.IssuedAt)).To(Equal(time.Hour))

		p, err := codec.Validate(issued.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Username).To(Equal("alice"))
		Expect(p.Roles).To(Equal([]string{"auditor"}))
		Expect(p.JTI).To(Equal(issued.JTI))
	})

	It("mints a fresh jti for every token", func() {
		a, err := codec.Issue("alice", nil, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		b, err := codec.Issue("alice", nil, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.JTI).NotTo(Equal(b.JTI))

		p, err := codec.Validate(a.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Roles).To(BeEmpty())
	})

	It("rejects a token issued with zero ttl", func() {
		issued, err := codec.Issue("alice", nil, 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = codec.Validate(issued.Token)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("rejects an expired token", func() {
		issued, err := codec.Issue("alice", nil, -time.Minute)
		Expect(err).NotTo(HaveOccurred())

		_, err = codec.Validate(issued.Token)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("rejects a token signed with another secret", func() {
		other := auth.NewTokenCodec("ffffffffffffffffffffffffffffffff")
		issued, err := other.Issue("alice", nil, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		_, err = codec.Validate(issued.Token)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("rejects algorithms other than HS256", func() {
		claims := &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "alice",
				ID:        "abc",
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}

		hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		Expect(err).NotTo(HaveOccurred())
		_, err = codec.Validate(hs512)
		Expect(err).To(MatchError(internal.ErrInvalidToken))

		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		Expect(err).NotTo(HaveOccurred())
		_, err = codec.Validate(none)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("rejects tokens without jti or expiry", func() {
		noJTI, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString([]byte(testSecret))
		Expect(err).NotTo(HaveOccurred())
		_, err = codec.Validate(noJTI)
		Expect(err).To(MatchError(internal.ErrInvalidToken))

		noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ID: "abc"},
		}).SignedString([]byte(testSecret))
		Expect(err).NotTo(HaveOccurred())
		_, err = codec.Validate(noExp)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("rejects garbage", func() {
		for _, raw := range []string{"", "abc", "a.b.c"} {
			_, err := codec.Validate(raw)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		}
	})
})

var _ = Describe("Auth Service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		codec    *auth.TokenCodec
		sessions *fakeSessions
		svc      *auth.Service
		meta     session.ClientMeta
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openDB()
		seedUsers(db)
		codec = auth.NewTokenCodec(testSecret)
		sessions = &fakeSessions{}
		svc = auth.NewService(authPostgres.NewRepository(db), codec, sessions, time.Hour, "super", quietLogger)
		meta = session.ClientMeta{IP: "10.0.0.1", UserAgent: "curl/8.0"}
	})

	Describe("Login", func() {
		It("issues a token carrying only enabled roles and records the session", func() {
			result, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "secret-pass"}, meta)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.AccessToken).NotTo(BeEmpty())

			p, err := codec.Validate(result.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Username).To(Equal("alice"))
			Expect(p.Roles).To(Equal([]string{"auditor"}))

			Expect(sessions.created).To(HaveLen(1))
			Expect(sessions.created[0].owner).To(Equal(session.Owner{ID: 2, Username: "alice"}))
			Expect(sessions.created[0].jti).To(Equal(p.JTI))
			Expect(sessions.created[0].meta).To(Equal(meta))
			Expect(sessions.created[0].expiresAt).To(BeTemporally("~", result.ExpiresAt, time.Second))
		})

		It("answers unknown users and wrong passwords the same way", func() {
			_, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "nope"}, meta)
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))

			_, err = svc.Login(ctx, auth.LoginDTO{Username: "ghost", Password: "secret-pass"}, meta)
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusForbidden))
			Expect(sessions.created).To(BeEmpty())
		})

		It("refuses inactive users", func() {
			_, err := svc.Login(ctx, auth.LoginDTO{Username: "mallory", Password: "secret-pass"}, meta)
			Expect(err).To(MatchError(internal.ErrUserInactive))
			Expect(sessions.created).To(BeEmpty())
		})

		It("validates the request", func() {
			_, err := svc.Login(ctx, auth.LoginDTO{}, meta)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("surfaces session creation failures", func() {
			sessions.createErr = internal.NewInternalError("boom", errors.New("db down"))
			_, err := svc.Login(ctx, auth.LoginDTO{Username: "alice", Password: "secret-pass"}, meta)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Logout", func() {
		It("revokes the caller's own session", func() {
			p := &internal.Principal{Username: "alice", JTI: "j1"}
			Expect(svc.Logout(ctx, p)).To(Succeed())
			Expect(sessions.revoked).To(ConsistOf(revokeCall{
				username: "alice", jti: "j1", actor: "alice", reason: session.ReasonLoggedOut,
			}))
		})

		It("requires a principal", func() {
			Expect(svc.Logout(ctx, nil)).To(MatchError(internal.ErrMissingToken))
		})
	})

	Describe("AccessCodes", func() {
		It("returns the wildcard for the superuser", func() {
			codes, err := svc.AccessCodes(ctx, &internal.Principal{Username: "admin", Roles: []string{"super"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(codes).To(Equal([]string{auth.AllCodes}))
		})

		It("collects codes from enabled roles and menus only", func() {
			codes, err := svc.AccessCodes(ctx, &internal.Principal{Username: "alice", Roles: []string{"auditor", "retired"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(codes).To(Equal([]string{auth.PermSessionList}))
		})

		It("returns an empty list without roles", func() {
			codes, err := svc.AccessCodes(ctx, &internal.Principal{Username: "bob"})
			Expect(err).NotTo(HaveOccurred())
			Expect(codes).To(BeEmpty())
		})
	})

	Describe("Authenticate", func() {
		It("accepts a valid token with a live session", func() {
			issued, err := codec.Issue("alice", []string{"auditor"}, time.Hour)
			Expect(err).NotTo(HaveOccurred())

			p, err := svc.Authenticate(ctx, issued.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.JTI).To(Equal(issued.JTI))
		})

		It("passes the session rejection through", func() {
			sessions.validateErr = internal.NewSessionRejectedError("kicked by administrator")
			issued, err := codec.Issue("alice", nil, time.Hour)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Authenticate(ctx, issued.Token)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Message).To(Equal("kicked by administrator"))
			Expect(appErr.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects missing and forged tokens before touching sessions", func() {
			sessions.validateErr = errors.New("must not be called")

			_, err := svc.Authenticate(ctx, "")
			Expect(err).To(MatchError(internal.ErrMissingToken))

			_, err = svc.Authenticate(ctx, "forged")
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})
	})
})

var _ = Describe("RBAC authorization", func() {
	var (
		db      *gorm.DB
		rbac    *auth.RBACAuthorization
		handler http.Handler
	)

	serve := func(p *internal.Principal) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/system/session/list", nil)
		if p != nil {
			req = req.WithContext(internal.ContextWithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		db = openDB()
		seedUsers(db)
		checker := auth.NewPermissionChecker(authPostgres.NewRepository(db), "super")
		rbac = auth.NewRBACAuthorization(checker, quietLogger)
		handler = rbac.Middleware(auth.PermSessionList)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	})

	It("lets the superuser through", func() {
		Expect(serve(&internal.Principal{Username: "admin", Roles: []string{"super"}}).Code).To(Equal(http.StatusOK))
	})

	It("lets a role holding the code through", func() {
		Expect(serve(&internal.Principal{Username: "alice", Roles: []string{"auditor"}}).Code).To(Equal(http.StatusOK))
	})

	It("forbids callers without the code", func() {
		rec := serve(&internal.Principal{Username: "carol", Roles: []string{"retired"}})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodePermissionDenied)))
	})

	It("answers 401 without a principal", func() {
		Expect(serve(nil).Code).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("HasAnyPermission", func() {
	It("matches exact codes and the wildcard", func() {
		Expect(auth.HasAnyPermission([]string{"a", "b"}, []string{"b"})).To(BeTrue())
		Expect(auth.HasAnyPermission([]string{auth.AllCodes}, []string{"b"})).To(BeTrue())
		Expect(auth.HasAnyPermission([]string{"a"}, []string{"b"})).To(BeFalse())
		Expect(auth.HasAnyPermission(nil, []string{"b"})).To(BeFalse())
	})
})
