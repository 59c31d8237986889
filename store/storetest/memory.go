// Package storetest provides in-memory repositories for tests.
// They honor the same conflict semantics as the PostgreSQL repositories:
// unique pending sharing tuples, conditional quota reservation and
// pending-only resolution.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/store"
)

// Memory holds every table behind a single mutex
type Memory struct {
	mu sync.Mutex

	orgs     map[string]db.Organization
	features map[string]db.RAGFeature
	toggles  map[string]map[string]db.FeatureToggle // org -> feature -> row
	quotas   map[string]db.OrganizationQuota
	requests map[string]db.SharingRequest
	items    map[string]db.ContextItem
	globals  map[string]db.GlobalContextItem
	grants   map[string]map[string]db.GlobalAccessGrant // org -> global item -> grant

	seq int64

	// Fail makes every repository call return this error when set
	Fail error
}

// New returns an empty in-memory database
func New() *Memory {
	return &Memory{
		orgs:     make(map[string]db.Organization),
		features: make(map[string]db.RAGFeature),
		toggles:  make(map[string]map[string]db.FeatureToggle),
		quotas:   make(map[string]db.OrganizationQuota),
		requests: make(map[string]db.SharingRequest),
		items:    make(map[string]db.ContextItem),
		globals:  make(map[string]db.GlobalContextItem),
		grants:   make(map[string]map[string]db.GlobalAccessGrant),
	}
}

// Store returns repositories backed by m
func (m *Memory) Store() *store.Store {
	return &store.Store{
		Organizations: (*orgRepo)(m),
		Catalog:       (*catalogRepo)(m),
		Toggles:       (*toggleRepo)(m),
		Quotas:        (*quotaRepo)(m),
		Sharing:       (*sharingRepo)(m),
		Items:         (*itemRepo)(m),
		Global:        (*globalRepo)(m),
	}
}

// now returns strictly increasing timestamps so ordering by created_at is stable
func (m *Memory) now() time.Time {
	m.seq++
	return time.Unix(1_700_000_000, 0).Add(time.Duration(m.seq) * time.Millisecond)
}

// ===========================
// SEEDING HELPERS
// ===========================

// AddOrganization stores an organization; parent "" means root
func (m *Memory) AddOrganization(id, name, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org := db.Organization{ID: id, Name: name}
	if parent != "" {
		p := parent
		org.ParentOrganizationID = &p
	}
	org.CreatedAt = m.now()
	org.UpdatedAt = org.CreatedAt
	m.orgs[id] = org
}

// AddFeature stores a catalog feature
func (m *Memory) AddFeature(key string, defaultEnabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[key] = db.RAGFeature{Key: key, Name: key, DefaultEnabled: defaultEnabled}
}

// SetToggle stores an explicit toggle row
func (m *Memory) SetToggle(orgID, feature string, enabled bool) {
	_ = (*toggleRepo)(m).Upsert(context.Background(), &db.FeatureToggle{
		OrganizationID: orgID,
		RAGFeature:     feature,
		Enabled:        enabled,
	})
}

// AddItem stores a context item and returns it
func (m *Memory) AddItem(id, orgID, feature, title string) db.ContextItem {
	item := db.ContextItem{
		ID:             id,
		OrganizationID: orgID,
		RAGFeature:     feature,
		ItemType:       "document",
		Title:          title,
		Content:        title + " content",
		Confidence:     1,
		CreatedBy:      "seed",
	}
	_ = (*itemRepo)(m).Create(context.Background(), &item)
	return item
}

// AddGlobalItem stores a global context item
func (m *Memory) AddGlobalItem(id, feature, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[id] = db.GlobalContextItem{ID: id, RAGFeature: feature, Title: title, CreatedAt: m.now()}
}

// SetQuota stores a quota row as given
func (m *Memory) SetQuota(q db.OrganizationQuota) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[q.OrganizationID] = q
}

// ItemCount returns the number of stored context items
func (m *Memory) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// ===========================
// ORGANIZATIONS
// ===========================

type orgRepo Memory

func (r *orgRepo) Get(_ context.Context, id string) (*db.Organization, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	org, ok := m.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &org, nil
}

func (r *orgRepo) Create(_ context.Context, org *db.Organization) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if _, ok := m.orgs[org.ID]; ok {
		return store.ErrDuplicate
	}
	org.CreatedAt = m.now()
	org.UpdatedAt = org.CreatedAt
	m.orgs[org.ID] = *org
	return nil
}

func (r *orgRepo) ListChildren(_ context.Context, parentID string) ([]db.Organization, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	children := make([]db.Organization, 0)
	for _, org := range m.orgs {
		if org.ParentOrganizationID != nil && *org.ParentOrganizationID == parentID {
			children = append(children, org)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (r *orgRepo) UpdateParent(_ context.Context, id string, parentID *string) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	org, ok := m.orgs[id]
	if !ok {
		return store.ErrNotFound
	}
	org.ParentOrganizationID = parentID
	org.UpdatedAt = m.now()
	m.orgs[id] = org
	return nil
}

// ===========================
// CATALOG + TOGGLES
// ===========================

type catalogRepo Memory

func (r *catalogRepo) List(_ context.Context) ([]db.RAGFeature, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	features := make([]db.RAGFeature, 0, len(m.features))
	for _, f := range m.features {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Key < features[j].Key })
	return features, nil
}

func (r *catalogRepo) Get(_ context.Context, key string) (*db.RAGFeature, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	f, ok := m.features[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &f, nil
}

type toggleRepo Memory

func (r *toggleRepo) ListByOrg(_ context.Context, orgID string) ([]db.FeatureToggle, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	toggles := make([]db.FeatureToggle, 0)
	for _, t := range m.toggles[orgID] {
		toggles = append(toggles, t)
	}
	sort.Slice(toggles, func(i, j int) bool { return toggles[i].RAGFeature < toggles[j].RAGFeature })
	return toggles, nil
}

func (r *toggleRepo) Get(_ context.Context, orgID, feature string) (*db.FeatureToggle, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	t, ok := m.toggles[orgID][feature]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (r *toggleRepo) Upsert(_ context.Context, toggle *db.FeatureToggle) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	rows, ok := m.toggles[toggle.OrganizationID]
	if !ok {
		rows = make(map[string]db.FeatureToggle)
		m.toggles[toggle.OrganizationID] = rows
	}
	now := m.now()
	if existing, ok := rows[toggle.RAGFeature]; ok {
		toggle.ID = existing.ID
		toggle.CreatedAt = existing.CreatedAt
	} else {
		if toggle.ID == "" {
			toggle.ID = uuid.New().String()
		}
		toggle.CreatedAt = now
	}
	toggle.UpdatedAt = now
	rows[toggle.RAGFeature] = *toggle
	return nil
}

func (r *toggleRepo) Delete(_ context.Context, orgID, feature string) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.toggles[orgID][feature]; !ok {
		return store.ErrNotFound
	}
	delete(m.toggles[orgID], feature)
	return nil
}

// ===========================
// QUOTAS
// ===========================

type quotaRepo Memory

func (r *quotaRepo) Get(_ context.Context, orgID string) (*db.OrganizationQuota, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	q, ok := m.quotas[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &q, nil
}

func (r *quotaRepo) Create(_ context.Context, quota *db.OrganizationQuota) (*db.OrganizationQuota, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if existing, ok := m.quotas[quota.OrganizationID]; ok {
		return &existing, nil
	}
	q := db.OrganizationQuota{
		OrganizationID:     quota.OrganizationID,
		MaxContextItems:    quota.MaxContextItems,
		MaxGlobalAccess:    quota.MaxGlobalAccess,
		MaxSharingRequests: quota.MaxSharingRequests,
	}
	q.CreatedAt = m.now()
	q.UpdatedAt = q.CreatedAt
	m.quotas[q.OrganizationID] = q
	return &q, nil
}

func (r *quotaRepo) Adjust(_ context.Context, orgID string, quotaType db.QuotaType, delta int) (*db.OrganizationQuota, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if !quotaType.Valid() {
		return nil, fmt.Errorf("unknown quota type %q", quotaType)
	}
	q, ok := m.quotas[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	current, _ := q.Usage(quotaType)
	next := current + delta
	if next < 0 {
		next = 0
	}
	q.SetCurrent(quotaType, next)
	q.UpdatedAt = m.now()
	m.quotas[orgID] = q
	return &q, nil
}

func (r *quotaRepo) Reserve(_ context.Context, orgID string, quotaType db.QuotaType, qty int) (*db.OrganizationQuota, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if !quotaType.Valid() {
		return nil, fmt.Errorf("unknown quota type %q", quotaType)
	}
	q, ok := m.quotas[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	current, max := q.Usage(quotaType)
	if current+qty > max {
		return &q, store.ErrLimitReached
	}
	q.SetCurrent(quotaType, current+qty)
	q.UpdatedAt = m.now()
	m.quotas[orgID] = q
	return &q, nil
}

func (r *quotaRepo) Reset(_ context.Context, orgID string, quotaTypes []db.QuotaType) (*db.OrganizationQuota, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	q, ok := m.quotas[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if len(quotaTypes) == 0 {
		quotaTypes = db.QuotaTypes
	}
	for _, t := range quotaTypes {
		q.SetCurrent(t, 0)
	}
	q.UpdatedAt = m.now()
	m.quotas[orgID] = q
	return &q, nil
}

func (r *quotaRepo) UpdateLimits(_ context.Context, orgID string, limits db.QuotaLimits) (*db.OrganizationQuota, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	q, ok := m.quotas[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if limits.MaxContextItems != nil {
		q.MaxContextItems = *limits.MaxContextItems
	}
	if limits.MaxGlobalAccess != nil {
		q.MaxGlobalAccess = *limits.MaxGlobalAccess
	}
	if limits.MaxSharingRequests != nil {
		q.MaxSharingRequests = *limits.MaxSharingRequests
	}
	q.UpdatedAt = m.now()
	m.quotas[orgID] = q
	return &q, nil
}

// ===========================
// SHARING REQUESTS
// ===========================

type sharingRepo Memory

// pendingExists must be called with the lock held
func (m *Memory) pendingExists(key db.SharingKey) bool {
	for _, req := range m.requests {
		if req.Status == db.SharingPending && req.Key() == key {
			return true
		}
	}
	return false
}

// insertRequest must be called with the lock held
func (m *Memory) insertRequest(req *db.SharingRequest) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = db.SharingPending
	}
	req.CreatedAt = m.now()
	m.requests[req.ID] = *req
}

func (r *sharingRepo) Create(_ context.Context, req *db.SharingRequest) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if m.pendingExists(req.Key()) {
		return store.ErrDuplicate
	}
	m.insertRequest(req)
	return nil
}

func (r *sharingRepo) CreateBatch(_ context.Context, reqs []*db.SharingRequest) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	seen := make(map[db.SharingKey]bool, len(reqs))
	for _, req := range reqs {
		key := req.Key()
		if seen[key] || m.pendingExists(key) {
			return store.ErrDuplicate
		}
		seen[key] = true
	}
	for _, req := range reqs {
		m.insertRequest(req)
	}
	return nil
}

func (r *sharingRepo) Get(_ context.Context, id string) (*db.SharingRequest, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	req, ok := m.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &req, nil
}

func (r *sharingRepo) FindPending(_ context.Context, key db.SharingKey) (*db.SharingRequest, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	for _, req := range m.requests {
		if req.Status == db.SharingPending && req.Key() == key {
			found := req
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *sharingRepo) Resolve(_ context.Context, id string, status db.SharingStatus, actor string, reason *string) (*db.SharingRequest, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if !status.Terminal() {
		return nil, fmt.Errorf("cannot resolve sharing request to %q", status)
	}
	req, ok := m.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != db.SharingPending {
		return nil, store.ErrStaleState
	}
	req.Status = status
	by := actor
	if status == db.SharingApproved {
		req.ApprovedBy = &by
	} else {
		req.RejectedBy = &by
	}
	req.RejectionReason = reason
	resolved := m.now()
	req.ResolvedAt = &resolved
	m.requests[id] = req
	return &req, nil
}

func (r *sharingRepo) SetCopiedItem(_ context.Context, id, itemID string) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	req, ok := m.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	copied := itemID
	req.CopiedItemID = &copied
	m.requests[id] = req
	return nil
}

// filterRequests returns matching requests newest first; lock must be held
func (m *Memory) filterRequests(match func(db.SharingRequest) bool) []db.SharingRequest {
	out := make([]db.SharingRequest, 0)
	for _, req := range m.requests {
		if match(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *sharingRepo) ListIncoming(_ context.Context, orgID string, status db.SharingStatus) ([]db.SharingRequest, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	return m.filterRequests(func(req db.SharingRequest) bool {
		return req.TargetOrganizationID == orgID && (status == "" || req.Status == status)
	}), nil
}

func (r *sharingRepo) ListOutgoing(_ context.Context, orgID string) ([]db.SharingRequest, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	return m.filterRequests(func(req db.SharingRequest) bool {
		return req.SourceOrganizationID == orgID
	}), nil
}

func (r *sharingRepo) CountOutgoing(ctx context.Context, orgID string) (int, error) {
	reqs, err := r.ListOutgoing(ctx, orgID)
	return len(reqs), err
}

func (r *sharingRepo) CountIncoming(ctx context.Context, orgID string, status db.SharingStatus) (int, error) {
	reqs, err := r.ListIncoming(ctx, orgID, status)
	return len(reqs), err
}

// ===========================
// CONTEXT ITEMS + GLOBAL ACCESS
// ===========================

type itemRepo Memory

func (r *itemRepo) Get(_ context.Context, id string) (*db.ContextItem, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	item, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (r *itemRepo) Create(_ context.Context, item *db.ContextItem) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if _, ok := m.items[item.ID]; ok {
		return store.ErrDuplicate
	}
	item.CreatedAt = m.now()
	item.UpdatedAt = item.CreatedAt
	m.items[item.ID] = *item
	return nil
}

func (r *itemRepo) ListByOrg(_ context.Context, orgID, feature string) ([]db.ContextItem, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	items := make([]db.ContextItem, 0)
	for _, item := range m.items {
		if item.OrganizationID == orgID && (feature == "" || item.RAGFeature == feature) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (r *itemRepo) Delete(_ context.Context, orgID, id string) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	item, ok := m.items[id]
	if !ok || item.OrganizationID != orgID {
		return store.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type globalRepo Memory

func (r *globalRepo) GetItem(_ context.Context, id string) (*db.GlobalContextItem, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	item, ok := m.globals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (r *globalRepo) Grant(_ context.Context, grant *db.GlobalAccessGrant) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	rows, ok := m.grants[grant.OrganizationID]
	if !ok {
		rows = make(map[string]db.GlobalAccessGrant)
		m.grants[grant.OrganizationID] = rows
	}
	if _, ok := rows[grant.GlobalItemID]; ok {
		return store.ErrDuplicate
	}
	grant.CreatedAt = m.now()
	rows[grant.GlobalItemID] = *grant
	return nil
}

func (r *globalRepo) Revoke(_ context.Context, orgID, globalItemID string) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.grants[orgID][globalItemID]; !ok {
		return store.ErrNotFound
	}
	delete(m.grants[orgID], globalItemID)
	return nil
}

func (r *globalRepo) ListGrants(_ context.Context, orgID string) ([]db.GlobalAccessGrant, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	grants := make([]db.GlobalAccessGrant, 0)
	for _, g := range m.grants[orgID] {
		grants = append(grants, g)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].CreatedAt.After(grants[j].CreatedAt) })
	return grants, nil
}

var (
	_ store.OrganizationRepo   = (*orgRepo)(nil)
	_ store.FeatureCatalogRepo = (*catalogRepo)(nil)
	_ store.FeatureToggleRepo  = (*toggleRepo)(nil)
	_ store.QuotaRepo          = (*quotaRepo)(nil)
	_ store.SharingRequestRepo = (*sharingRepo)(nil)
	_ store.ContextItemRepo    = (*itemRepo)(nil)
	_ store.GlobalAccessRepo   = (*globalRepo)(nil)
)
