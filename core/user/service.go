package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/tenant"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrInvalidOTP     = errors.New("invalid or expired code")
	ErrStudentCap     = errors.New("the school has reached its student limit")
	ErrStaffCap       = errors.New("the school has reached its staff limit")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, tenantID, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		// GetUserByUsernameOrEmail matches users within the tenant;
		// superusers match regardless of tenant.
		GetUserByUsernameOrEmail(ctx context.Context, tenantID, uname string) (User, error)
		// FilterUsers applies AND on available QueryFilter fields,
		// always keyed by tenant.
		FilterUsers(ctx context.Context, tenantID string, filter QueryFilter) ([]User, error)
		CountUsers(ctx context.Context, tenantID string, roles ...string) (int, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		UpdateLastLogin(ctx context.Context, id string, t time.Time) error
		DeleteUsersByID(ctx context.Context, tenantID string, ids ...string) error
	}

	Service struct {
		conf  *core.Config
		repo  Repository
		queue core.TaskQueue
		cache core.Cache
	}
)

func NewService(conf *core.Config, repo Repository, queue core.TaskQueue, cache core.Cache) *Service {
	return &Service{conf: conf, repo: repo, queue: queue, cache: cache}
}

func (svc *Service) checkUniqueness(tenantID, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), tenantID, uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// checkCapacity enforces the tenant's student/staff caps before adding
// a user with the given role.
func (svc *Service) checkCapacity(ctx context.Context, tnt tenant.Tenant, role string) error {
	switch role {
	case RoleStudent:
		n, err := svc.repo.CountUsers(ctx, tnt.ID, RoleStudent)
		if err != nil {
			return err
		}
		if tnt.MaxStudents > 0 && n >= tnt.MaxStudents {
			return core.NewValidationError(ErrStudentCap, core.FieldError{Field: "role", Error: ErrStudentCap.Error()})
		}
	case RoleProfessor, RoleDirection, RoleAdmin:
		n, err := svc.repo.CountUsers(ctx, tnt.ID, StaffRoles...)
		if err != nil {
			return err
		}
		if tnt.MaxStaff > 0 && n >= tnt.MaxStaff {
			return core.NewValidationError(ErrStaffCap, core.FieldError{Field: "role", Error: ErrStaffCap.Error()})
		}
	}
	return nil
}

// Create adds a user to the tenant and queues a welcome email.
func (svc *Service) Create(ctx context.Context, tnt tenant.Tenant, nu NewUser) (User, error) {
	if err := svc.checkCapacity(ctx, tnt, nu.Role); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		TenantID:  tnt.ID,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}

	svc.enqueueEmail(ctx, usr.TenantID, core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("[%s] Welcome to %s", tnt.Name, tnt.Name),
		Body: fmt.Sprintf(
			"Dear %s,\n\nYour %s account has been created. You can sign in at %s with the username %q.",
			usr.Name, tnt.Name, tnt.PrimaryDomain(), usr.Username,
		),
	})
	return usr, nil
}

// CreateSuperuser adds a platform-level user with no tenant.
func (svc *Service) CreateSuperuser(ctx context.Context, name, uname, email, pwd string) (User, error) {
	if err := svc.checkUniqueness("", uname, email); err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	usr := User{
		ID:          uuid.New().String(),
		Name:        name,
		Username:    core.CleanString(uname, true /* lower */),
		Email:       core.CleanString(email, true /* lower */),
		Role:        RoleAdmin,
		IsActive:    true,
		IsSuperuser: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, tenantID, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, tenantID, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, tenantID string, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.FilterUsers(ctx, tenantID, filter)
}

func (svc *Service) Count(ctx context.Context, tenantID string, roles ...string) (int, error) {
	return svc.repo.CountUsers(ctx, tenantID, roles...)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		Role:      uu.Role,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *Service) Delete(ctx context.Context, tenantID string, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, tenantID, ids...)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	if err := svc.repo.UpdateLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, err
	}
	usr.LastLogin = now
	return usr, nil
}

// RequestPasswordReset queues a reset email for the matching account.
// A missing account is not an error; callers must not leak existence.
func (svc *Service) RequestPasswordReset(ctx context.Context, tnt tenant.Tenant, email string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, tnt.ID, email)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}

	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return pkgerrors.Wrap(err, "making reset token")
	}
	url := fmt.Sprintf("%s/password-reset-confirm?uid=%s&token=%s", svc.conf.FrontendBaseURL, EncodeUID(usr), token)

	svc.enqueueEmail(ctx, tnt.ID, core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("[%s] Password reset", tnt.Name),
		Body:    fmt.Sprintf("Dear %s,\n\nFollow this link to reset your password:\n%s", usr.Name, url),
	})
	return nil
}

// ConfirmPasswordReset verifies the token and sets the new password.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) (User, error) {
	uid, err := DecodeUID(rp.UID)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, uid)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	if err = VerifyToken(svc.conf, usr, rp.Token); err != nil {
		return User{}, core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

// RequestOTP generates a one-time code, stores it with a TTL and queues
// it to the user's email. It is the second authentication factor for
// staff roles.
func (svc *Service) RequestOTP(ctx context.Context, tnt tenant.Tenant, usr User) error {
	code, err := generateOTPCode()
	if err != nil {
		return pkgerrors.Wrap(err, "generating OTP code")
	}
	if err = svc.cache.Set(ctx, otpCacheKey(usr.ID), code, svc.conf.OTPTimeoutDelta); err != nil {
		return pkgerrors.Wrap(err, "storing OTP code")
	}

	svc.enqueueEmail(ctx, usr.TenantID, core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("[%s] Your verification code", tnt.Name),
		Body:    fmt.Sprintf("Your verification code is %s. It expires in %s.", code, svc.conf.OTPTimeoutDelta),
	})
	return nil
}

// VerifyOTP checks the submitted code and consumes it on success.
func (svc *Service) VerifyOTP(ctx context.Context, usr User, code string) error {
	stored, err := svc.cache.Get(ctx, otpCacheKey(usr.ID))
	if err != nil {
		if err == core.ErrCacheMiss {
			return ErrInvalidOTP
		}
		return err
	}
	if stored != core.CleanString(code) {
		return ErrInvalidOTP
	}
	return svc.cache.Delete(ctx, otpCacheKey(usr.ID))
}

func (svc *Service) enqueueEmail(ctx context.Context, tenantID string, msg core.EmailMessage) {
	if svc.queue == nil {
		return
	}
	task, err := core.NewTask(core.TaskSendEmail, tenantID, msg)
	if err != nil {
		return
	}
	// fire and forget; the worker owns delivery and retries
	_ = svc.queue.Enqueue(ctx, task)
}

func otpCacheKey(userID string) string {
	return "user:otp:" + userID
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
