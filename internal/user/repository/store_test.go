package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"identity-store/internal/fault"
	"identity-store/internal/pipeline"
	"identity-store/internal/storage"
	"identity-store/internal/storage/memory"
	"identity-store/internal/user/codec"
	"identity-store/internal/user/domain"
)

// fakeClock hands out strictly increasing instants so creation order is
// unambiguous in listings.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRepo(t *testing.T) *StoreRepository {
	t.Helper()
	driver := memory.New(nil)
	driver.CreateTable(codec.Table, memory.Unique{
		Columns:       []string{"tenant_id", "email"},
		OnlyWhereNull: "deleted_at",
	})
	repo := NewStoreRepository(driver, pipeline.New(pipeline.Config{MaxAttempts: 1}))
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo.now = clock.Now
	return repo
}

func mustCreate(t *testing.T, repo *StoreRepository, tenantID uuid.UUID, email string, role domain.Role, active bool) *domain.User {
	t.Helper()
	u, err := repo.Create(context.Background(), &domain.User{
		TenantID: tenantID,
		Email:    email,
		Role:     role,
		Active:   active,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", email, err)
	}
	return u
}

func TestCreateAndGetByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	created := mustCreate(t, repo, tenant, "alice@corp.example", domain.RoleAdmin, true)
	if created.ID == uuid.Nil {
		t.Fatal("Create should assign an id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("Create should stamp CreatedAt")
	}
	if created.UpdatedAt != nil {
		t.Error("UpdatedAt should be nil on creation")
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID = nil, want the created user")
	}
	if got.Email != "alice@corp.example" || got.Role != domain.RoleAdmin || !got.Active {
		t.Errorf("got %+v", got)
	}
	if got.TenantID != tenant {
		t.Errorf("TenantID = %v, want %v", got.TenantID, tenant)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestCreate_DefaultsRole(t *testing.T) {
	repo := newTestRepo(t)
	u := mustCreate(t, repo, uuid.New(), "x@y.z", "", true)
	if u.Role != domain.RoleMember {
		t.Errorf("Role = %q, want default %q", u.Role, domain.RoleMember)
	}
}

func TestCreate_Invalid(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Create(context.Background(), &domain.User{TenantID: uuid.New()})
	if err == nil {
		t.Fatal("Create without email should fail")
	}
	if fault.KindOf(err) != fault.MalformedInput {
		t.Errorf("kind = %v, want %v", fault.KindOf(err), fault.MalformedInput)
	}
}

func TestCreate_DuplicateEmailConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()
	mustCreate(t, repo, tenant, "dup@corp.example", domain.RoleMember, true)

	_, err := repo.Create(ctx, &domain.User{TenantID: tenant, Email: "dup@corp.example"})
	if !fault.IsConflict(err) {
		t.Fatalf("duplicate create error = %v, want conflict", err)
	}

	// The same email in another tenant is allowed.
	if _, err := repo.Create(ctx, &domain.User{TenantID: uuid.New(), Email: "dup@corp.example"}); err != nil {
		t.Fatalf("cross-tenant create: %v", err)
	}
}

func TestGetByID_Miss(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Errorf("GetByID = %v, want nil for unknown id", got)
	}
}

func TestGetByEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()
	mustCreate(t, repo, tenant, "bob@corp.example", domain.RoleMember, true)

	got, err := repo.GetByEmail(ctx, tenant, "bob@corp.example")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got == nil {
		t.Fatal("GetByEmail = nil, want the user")
	}

	// Scoped to the tenant.
	other, err := repo.GetByEmail(ctx, uuid.New(), "bob@corp.example")
	if err != nil {
		t.Fatalf("GetByEmail other tenant: %v", err)
	}
	if other != nil {
		t.Errorf("GetByEmail other tenant = %v, want nil", other)
	}
}

func TestUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()
	created := mustCreate(t, repo, tenant, "carol@corp.example", domain.RoleMember, true)

	created.Email = "carol.new@corp.example"
	created.Role = domain.RoleAdmin
	created.Active = false
	updated, err := repo.Update(ctx, created)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.UpdatedAt == nil {
		t.Fatal("Update should stamp UpdatedAt")
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Email != "carol.new@corp.example" || got.Role != domain.RoleAdmin || got.Active {
		t.Errorf("got %+v", got)
	}
	if got.TenantID != tenant {
		t.Errorf("TenantID changed to %v", got.TenantID)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v vs %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestUpdate_TenantImmutable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()
	created := mustCreate(t, repo, tenant, "dave@corp.example", domain.RoleMember, true)

	// A caller trying to move the user between tenants is silently ignored.
	created.TenantID = uuid.New()
	if _, err := repo.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.TenantID != tenant {
		t.Errorf("TenantID = %v, want original %v", got.TenantID, tenant)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Update(context.Background(), &domain.User{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Email:    "ghost@corp.example",
	})
	if !fault.IsNotFound(err) {
		t.Fatalf("Update unknown id error = %v, want not_found", err)
	}
}

func TestUpdate_DoesNotResurrectSoftDeleted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()
	created := mustCreate(t, repo, tenant, "dora@corp.example", domain.RoleMember, true)

	if ok, err := repo.SoftDelete(ctx, created.ID); err != nil || !ok {
		t.Fatalf("SoftDelete = (%v, %v), want (true, nil)", ok, err)
	}

	// A caller holding a live copy updates it; DeletedAt on the entity is nil.
	created.Email = "dora.renamed@corp.example"
	if _, err := repo.Update(ctx, created); err != nil {
		t.Fatalf("Update of soft-deleted user: %v", err)
	}

	// The row stays deleted: invisible to reads, visible with IncludeDeleted.
	if got, _ := repo.GetByID(ctx, created.ID); got != nil {
		t.Error("GetByID should not see the user after update of a soft-deleted row")
	}
	page, err := repo.ListByTenant(ctx, tenant, ListOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(page.Users) != 1 {
		t.Fatalf("len(Users) = %d, want 1", len(page.Users))
	}
	if page.Users[0].DeletedAt == nil {
		t.Error("DeletedAt should survive an update")
	}
	if got := page.Users[0].Email; got != "dora.renamed@corp.example" {
		t.Errorf("Email = %q, want %q", got, "dora.renamed@corp.example")
	}
}

func TestSoftDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()
	created := mustCreate(t, repo, tenant, "eve@corp.example", domain.RoleMember, true)

	ok, err := repo.SoftDelete(ctx, created.ID)
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if !ok {
		t.Fatal("first SoftDelete should report true")
	}

	// Idempotent: the second call is a no-op.
	ok, err = repo.SoftDelete(ctx, created.ID)
	if err != nil {
		t.Fatalf("second SoftDelete: %v", err)
	}
	if ok {
		t.Error("second SoftDelete should report false")
	}

	// Soft-deleted rows are invisible to reads and counts.
	if got, _ := repo.GetByID(ctx, created.ID); got != nil {
		t.Error("GetByID should not see a soft-deleted user")
	}
	if got, _ := repo.GetByEmail(ctx, tenant, "eve@corp.example"); got != nil {
		t.Error("GetByEmail should not see a soft-deleted user")
	}
	n, err := repo.CountByTenant(ctx, tenant)
	if err != nil {
		t.Fatalf("CountByTenant: %v", err)
	}
	if n != 0 {
		t.Errorf("CountByTenant = %d, want 0", n)
	}

	// The email is reusable once its previous holder is soft-deleted.
	if _, err := repo.Create(ctx, &domain.User{TenantID: tenant, Email: "eve@corp.example"}); err != nil {
		t.Fatalf("re-create after soft delete: %v", err)
	}
}

func TestSoftDelete_Unknown(t *testing.T) {
	repo := newTestRepo(t)
	ok, err := repo.SoftDelete(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if ok {
		t.Error("SoftDelete of unknown id should report false, not error")
	}
}

func TestHardDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := mustCreate(t, repo, uuid.New(), "frank@corp.example", domain.RoleMember, true)

	ok, err := repo.HardDelete(ctx, created.ID)
	if err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if !ok {
		t.Fatal("HardDelete should report true for an existing row")
	}

	ok, err = repo.HardDelete(ctx, created.ID)
	if err != nil {
		t.Fatalf("second HardDelete: %v", err)
	}
	if ok {
		t.Error("second HardDelete should report false")
	}

	// Hard delete removes even soft-deleted rows.
	u := mustCreate(t, repo, uuid.New(), "gone@corp.example", domain.RoleMember, true)
	if _, err := repo.SoftDelete(ctx, u.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	ok, err = repo.HardDelete(ctx, u.ID)
	if err != nil {
		t.Fatalf("HardDelete soft-deleted: %v", err)
	}
	if !ok {
		t.Error("HardDelete should remove a soft-deleted row")
	}
}

func TestListByTenant_PaginationInvariant(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	emails := []string{"u1@x.y", "u2@x.y", "u3@x.y", "u4@x.y", "u5@x.y"}
	for _, e := range emails {
		mustCreate(t, repo, tenant, e, domain.RoleMember, true)
	}

	seen := map[uuid.UUID]bool{}
	var firstTotal int64 = -1
	for offset := 0; ; offset += 2 {
		page, err := repo.ListByTenant(ctx, tenant, ListOptions{
			Page: storage.Page{Limit: 2, Offset: offset},
		})
		if err != nil {
			t.Fatalf("ListByTenant offset %d: %v", offset, err)
		}
		if firstTotal == -1 {
			firstTotal = page.TotalCount
		}
		// TotalCount is stable across pages of the same filter.
		if page.TotalCount != firstTotal {
			t.Fatalf("TotalCount drifted: %d vs %d", page.TotalCount, firstTotal)
		}
		if len(page.Users) == 0 {
			break
		}
		for _, u := range page.Users {
			if seen[u.ID] {
				t.Fatalf("user %s appeared on two pages", u.ID)
			}
			seen[u.ID] = true
		}
	}
	if firstTotal != int64(len(emails)) {
		t.Errorf("TotalCount = %d, want %d", firstTotal, len(emails))
	}
	if len(seen) != len(emails) {
		t.Errorf("union of pages = %d users, want %d", len(seen), len(emails))
	}
}

func TestListByTenant_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	first := mustCreate(t, repo, tenant, "old@x.y", domain.RoleMember, true)
	second := mustCreate(t, repo, tenant, "mid@x.y", domain.RoleMember, true)
	third := mustCreate(t, repo, tenant, "new@x.y", domain.RoleMember, true)

	page, err := repo.ListByTenant(ctx, tenant, ListOptions{})
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	wantOrder := []uuid.UUID{third.ID, second.ID, first.ID}
	if len(page.Users) != 3 {
		t.Fatalf("len = %d, want 3", len(page.Users))
	}
	for i, id := range wantOrder {
		if page.Users[i].ID != id {
			t.Errorf("Users[%d] = %s, want %s", i, page.Users[i].ID, id)
		}
	}
}

func TestListByTenant_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	mustCreate(t, repo, tenant, "admin1@x.y", domain.RoleAdmin, true)
	mustCreate(t, repo, tenant, "admin2@x.y", domain.RoleAdmin, false)
	mustCreate(t, repo, tenant, "member@x.y", domain.RoleMember, true)
	deleted := mustCreate(t, repo, tenant, "deleted@x.y", domain.RoleAdmin, true)
	if _, err := repo.SoftDelete(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	mustCreate(t, repo, uuid.New(), "othertenant@x.y", domain.RoleAdmin, true)

	admin := domain.RoleAdmin
	page, err := repo.ListByTenant(ctx, tenant, ListOptions{Role: &admin})
	if err != nil {
		t.Fatalf("by role: %v", err)
	}
	if page.TotalCount != 2 || len(page.Users) != 2 {
		t.Errorf("by role: total %d, len %d, want 2/2", page.TotalCount, len(page.Users))
	}

	active := true
	page, err = repo.ListByTenant(ctx, tenant, ListOptions{Role: &admin, Active: &active})
	if err != nil {
		t.Fatalf("by role and active: %v", err)
	}
	if page.TotalCount != 1 {
		t.Errorf("by role and active: total %d, want 1", page.TotalCount)
	}

	page, err = repo.ListByTenant(ctx, tenant, ListOptions{EmailContains: "admin"})
	if err != nil {
		t.Fatalf("by substring: %v", err)
	}
	if page.TotalCount != 2 {
		t.Errorf("by substring: total %d, want 2", page.TotalCount)
	}

	page, err = repo.ListByTenant(ctx, tenant, ListOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("include deleted: %v", err)
	}
	if page.TotalCount != 4 {
		t.Errorf("include deleted: total %d, want 4", page.TotalCount)
	}
}

func TestCreateBatch_Atomicity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	// The third member duplicates the first; nothing may persist.
	_, err := repo.CreateBatch(ctx, []*domain.User{
		{TenantID: tenant, Email: "a@x.y"},
		{TenantID: tenant, Email: "b@x.y"},
		{TenantID: tenant, Email: "a@x.y"},
	})
	if !fault.IsBatchAborted(err) {
		t.Fatalf("error = %v, want batch_aborted", err)
	}

	n, err := repo.CountByTenant(ctx, tenant)
	if err != nil {
		t.Fatalf("CountByTenant: %v", err)
	}
	if n != 0 {
		t.Errorf("count after aborted batch = %d, want 0", n)
	}

	// A clean batch commits all members.
	created, err := repo.CreateBatch(ctx, []*domain.User{
		{TenantID: tenant, Email: "a@x.y"},
		{TenantID: tenant, Email: "b@x.y"},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want 2", len(created))
	}
	for _, u := range created {
		if u.ID == uuid.Nil {
			t.Error("batch member missing assigned id")
		}
	}
	n, _ = repo.CountByTenant(ctx, tenant)
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestUpdateBatch_Atomicity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	u1 := mustCreate(t, repo, tenant, "a@x.y", domain.RoleMember, true)
	u2 := mustCreate(t, repo, tenant, "b@x.y", domain.RoleMember, true)

	u1.Role = domain.RoleAdmin
	u2.Role = domain.RoleAdmin
	ghost := &domain.User{ID: uuid.New(), TenantID: tenant, Email: "ghost@x.y"}

	err := repo.UpdateBatch(ctx, []*domain.User{u1, u2, ghost})
	if !fault.IsBatchAborted(err) {
		t.Fatalf("error = %v, want batch_aborted", err)
	}

	// The earlier members' updates were rolled back.
	got, err := repo.GetByID(ctx, u1.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Role != domain.RoleMember {
		t.Errorf("u1 role = %q, want unchanged %q", got.Role, domain.RoleMember)
	}

	// The clean batch commits.
	if err := repo.UpdateBatch(ctx, []*domain.User{u1, u2}); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	got, _ = repo.GetByID(ctx, u1.ID)
	if got.Role != domain.RoleAdmin {
		t.Errorf("u1 role = %q, want %q", got.Role, domain.RoleAdmin)
	}
}

func TestListActiveByRole(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	mustCreate(t, repo, tenant, "a@x.y", domain.RoleAdmin, true)
	mustCreate(t, repo, tenant, "b@x.y", domain.RoleAdmin, false)
	mustCreate(t, repo, tenant, "c@x.y", domain.RoleMember, true)

	users, err := repo.ListActiveByRole(ctx, tenant, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("ListActiveByRole: %v", err)
	}
	if len(users) != 1 || users[0].Email != "a@x.y" {
		t.Errorf("users = %v, want only the active admin", users)
	}
}

func TestListCreatedSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	mustCreate(t, repo, tenant, "early@x.y", domain.RoleMember, true)
	pivot := mustCreate(t, repo, tenant, "pivot@x.y", domain.RoleMember, true)
	mustCreate(t, repo, tenant, "late@x.y", domain.RoleMember, true)

	// The boundary is inclusive: the user created exactly at since is returned.
	users, err := repo.ListCreatedSince(ctx, tenant, pivot.CreatedAt)
	if err != nil {
		t.Fatalf("ListCreatedSince: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}
	if users[0].Email != "late@x.y" || users[1].Email != "pivot@x.y" {
		t.Errorf("users = [%s %s], want newest first from the pivot", users[0].Email, users[1].Email)
	}
}

func TestListByEmailDomain(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenant := uuid.New()

	mustCreate(t, repo, tenant, "a@corp.example", domain.RoleMember, true)
	mustCreate(t, repo, tenant, "b@corp.example", domain.RoleMember, true)
	mustCreate(t, repo, tenant, "c@other.example", domain.RoleMember, true)
	// A bare substring match would catch this one too.
	mustCreate(t, repo, tenant, "corp.example@other.example", domain.RoleMember, true)

	for _, arg := range []string{"corp.example", "@corp.example"} {
		users, err := repo.ListByEmailDomain(ctx, tenant, arg)
		if err != nil {
			t.Fatalf("ListByEmailDomain(%q): %v", arg, err)
		}
		if len(users) != 2 {
			t.Errorf("ListByEmailDomain(%q) = %d users, want 2", arg, len(users))
		}
	}
}
