package catalog

import (
    "context"
    "sync"

    "go.uber.org/zap"

    "github.com/Dev020403/sweet-shop-management-system/internal/api"
    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
    "github.com/Dev020403/sweet-shop-management-system/pkg/config"
)

// Gate rejects admin-only operations before any request is sent.
type Gate interface {
    RequireAdmin() error
}

// updateStrategy says how a successful mutation reaches the published
// collection: patch it in place, or re-run the current query because the
// result's membership cannot be decided client-side.
type updateStrategy int

const (
    applyLocalPatch updateStrategy = iota
    applyRefetch
)

// State is the published snapshot the rendering layer draws from.
type State struct {
    Sweets     []domain.Sweet
    Pagination domain.Pagination
    Filters    domain.Filters
    Page       int
    PageSize   int
    SearchMode bool
    Err        error
}

// Controller is the single source of truth for the listing view: it holds
// the query state (filters, page, mode) and the published collection, and
// issues exactly one backend call per query mutation.
type Controller struct {
    client          *api.Client
    gate            Gate
    logger          *zap.Logger
    defaultPageSize int

    mu         sync.Mutex
    filters    domain.Filters
    page       int
    limit      int
    searchMode bool

    sweets     []domain.Sweet
    pagination domain.Pagination
    lastErr    error

    // fetchSeq invalidates stale responses: an overlapping fetch that
    // finishes after a newer one started is discarded instead of
    // overwriting the published state.
    fetchSeq uint64
}

func NewController(client *api.Client, gate Gate, cfg *config.Config, logger *zap.Logger) *Controller {
    return &Controller{
        client:          client,
        gate:            gate,
        logger:          logger,
        defaultPageSize: cfg.DefaultPageSize,
        page:            1,
        limit:           cfg.DefaultPageSize,
        sweets:          []domain.Sweet{},
    }
}

// FilterChange merges one partial filter edit into the current filter set.
type FilterChange func(*domain.Filters)

func Query(q string) FilterChange {
    return func(f *domain.Filters) { f.Query = q }
}

func Category(category string) FilterChange {
    return func(f *domain.Filters) { f.Category = category }
}

// MinPrice sets the lower price bound; nil removes it.
func MinPrice(p *float64) FilterChange {
    return func(f *domain.Filters) { f.MinPrice = p }
}

// MaxPrice sets the upper price bound; nil removes it.
func MaxPrice(p *float64) FilterChange {
    return func(f *domain.Filters) { f.MaxPrice = p }
}

// SetFilters merges the changes into the filter set, resets to the first
// page, recomputes browse-vs-search mode and fetches once.
func (c *Controller) SetFilters(ctx context.Context, changes ...FilterChange) error {
    c.mu.Lock()
    for _, change := range changes {
        change(&c.filters)
    }
    c.page = 1
    c.searchMode = c.filters.Active()
    c.mu.Unlock()
    return c.fetch(ctx)
}

// SetPage moves to page n without touching filters or mode, then fetches once.
func (c *Controller) SetPage(ctx context.Context, n int) error {
    c.mu.Lock()
    c.page = n
    c.mu.Unlock()
    return c.fetch(ctx)
}

// SetPageSize changes the page size, resets to the first page and fetches once.
func (c *Controller) SetPageSize(ctx context.Context, n int) error {
    c.mu.Lock()
    c.limit = n
    c.page = 1
    c.mu.Unlock()
    return c.fetch(ctx)
}

// Clear resets all filters, forces browse mode, resets to the first page
// and fetches once.
func (c *Controller) Clear(ctx context.Context) error {
    c.mu.Lock()
    c.filters = domain.Filters{}
    c.searchMode = false
    c.page = 1
    c.mu.Unlock()
    return c.fetch(ctx)
}

// Refresh re-runs the current query without changing any query state.
func (c *Controller) Refresh(ctx context.Context) error {
    return c.fetch(ctx)
}

// fetch is the orchestrator: exactly one outbound call, browse XOR search,
// whole-collection replacement on success, cleared collection plus recorded
// error on failure. Query state is never altered here.
func (c *Controller) fetch(ctx context.Context) error {
    c.mu.Lock()
    c.fetchSeq++
    seq := c.fetchSeq
    filters := c.filters
    page, limit, search := c.page, c.limit, c.searchMode
    c.mu.Unlock()

    var (
        sweets     []domain.Sweet
        pagination domain.Pagination
        err        error
    )
    if search {
        var total int
        sweets, total, err = c.client.SearchSweets(ctx, filters)
        if err == nil {
            // Search results are not server-paginated; synthesize the
            // metadata from the reported total and the default page size.
            pagination = domain.Pagination{
                Page:       1,
                Limit:      c.defaultPageSize,
                Total:      total,
                TotalPages: ceilDiv(total, c.defaultPageSize),
            }
        }
    } else {
        sweets, pagination, err = c.client.ListSweets(ctx, page, limit, filters)
    }

    c.mu.Lock()
    defer c.mu.Unlock()

    if seq != c.fetchSeq {
        c.logger.Debug("Discarding stale fetch result", zap.Uint64("seq", seq))
        return nil
    }

    if err != nil {
        c.sweets = []domain.Sweet{}
        c.pagination = domain.Pagination{}
        c.lastErr = err
        c.logger.Error("Fetch failed",
            zap.Bool("search_mode", search),
            zap.Error(err))
        return err
    }

    if sweets == nil {
        sweets = []domain.Sweet{}
    }
    c.sweets = sweets
    c.pagination = pagination
    c.lastErr = nil
    return nil
}

// Purchase decrements stock server-side, then patches the published item.
// A backend rejection (insufficient stock) leaves the collection untouched.
func (c *Controller) Purchase(ctx context.Context, id int64, quantity int) (domain.Sweet, error) {
    if quantity < 1 {
        return domain.Sweet{}, api.ValidationError("purchase quantity must be at least 1")
    }

    updated, err := c.client.PurchaseSweet(ctx, id, quantity)
    if err != nil {
        return domain.Sweet{}, err
    }

    c.patch(id, func(s *domain.Sweet) { s.Quantity -= quantity })
    return updated, nil
}

// Restock increments stock server-side (admin only), then patches the
// published item.
func (c *Controller) Restock(ctx context.Context, id int64, quantity int) (domain.Sweet, error) {
    if err := c.gate.RequireAdmin(); err != nil {
        return domain.Sweet{}, err
    }
    if quantity < 1 {
        return domain.Sweet{}, api.ValidationError("restock quantity must be at least 1")
    }

    updated, err := c.client.RestockSweet(ctx, id, quantity)
    if err != nil {
        return domain.Sweet{}, err
    }

    c.patch(id, func(s *domain.Sweet) { s.Quantity += quantity })
    return updated, nil
}

// Add creates a sweet (admin only). In browse mode the new item is
// prepended; in search mode membership in the current results cannot be
// decided client-side, so the query is re-run instead.
func (c *Controller) Add(ctx context.Context, req domain.CreateSweetRequest) (domain.Sweet, error) {
    if err := c.gate.RequireAdmin(); err != nil {
        return domain.Sweet{}, err
    }

    created, err := c.client.CreateSweet(ctx, req)
    if err != nil {
        return domain.Sweet{}, err
    }

    strategy := applyLocalPatch
    c.mu.Lock()
    if c.searchMode {
        strategy = applyRefetch
    } else {
        c.sweets = append([]domain.Sweet{created}, c.sweets...)
    }
    c.mu.Unlock()

    if strategy == applyRefetch {
        if err := c.Refresh(ctx); err != nil {
            return created, err
        }
    }
    return created, nil
}

// Update replaces the matching published item with the server's returned
// representation (admin only).
func (c *Controller) Update(ctx context.Context, id int64, req domain.UpdateSweetRequest) (domain.Sweet, error) {
    if err := c.gate.RequireAdmin(); err != nil {
        return domain.Sweet{}, err
    }

    updated, err := c.client.UpdateSweet(ctx, id, req)
    if err != nil {
        return domain.Sweet{}, err
    }

    c.patch(id, func(s *domain.Sweet) { *s = updated })
    return updated, nil
}

// Delete removes the sweet (admin only) and drops it from the published
// collection.
func (c *Controller) Delete(ctx context.Context, id int64) error {
    if err := c.gate.RequireAdmin(); err != nil {
        return err
    }

    if err := c.client.DeleteSweet(ctx, id); err != nil {
        return err
    }

    c.mu.Lock()
    kept := c.sweets[:0]
    for _, s := range c.sweets {
        if s.ID != id {
            kept = append(kept, s)
        }
    }
    c.sweets = kept
    c.mu.Unlock()
    return nil
}

// Get fetches a single sweet without touching the published collection.
func (c *Controller) Get(ctx context.Context, id int64) (domain.Sweet, error) {
    return c.client.GetSweet(ctx, id)
}

// Snapshot returns a copy of the published state.
func (c *Controller) Snapshot() State {
    c.mu.Lock()
    defer c.mu.Unlock()

    sweets := make([]domain.Sweet, len(c.sweets))
    copy(sweets, c.sweets)
    return State{
        Sweets:     sweets,
        Pagination: c.pagination,
        Filters:    c.filters,
        Page:       c.page,
        PageSize:   c.limit,
        SearchMode: c.searchMode,
        Err:        c.lastErr,
    }
}

func (c *Controller) patch(id int64, apply func(*domain.Sweet)) {
    c.mu.Lock()
    defer c.mu.Unlock()
    for i := range c.sweets {
        if c.sweets[i].ID == id {
            apply(&c.sweets[i])
            return
        }
    }
}

func ceilDiv(total, size int) int {
    if size <= 0 {
        return 0
    }
    return (total + size - 1) / size
}
