package catalog

import (
    "context"
    "errors"
    "net/http"
    "testing"
    "time"

    "go.uber.org/zap"

    "github.com/Dev020403/sweet-shop-management-system/internal/api"
    "github.com/Dev020403/sweet-shop-management-system/internal/apitest"
    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
    "github.com/Dev020403/sweet-shop-management-system/internal/session"
    "github.com/Dev020403/sweet-shop-management-system/pkg/config"
)

type env struct {
    server     *apitest.Server
    client     *api.Client
    session    *session.Session
    controller *Controller
}

func newEnv(t *testing.T) *env {
    t.Helper()

    server := apitest.NewServer()
    t.Cleanup(server.Close)

    cfg := &config.Config{
        APIBaseURL:      server.URL(),
        RequestTimeout:  5 * time.Second,
        DefaultPageSize: 12,
    }
    logger := zap.NewNop()

    client := api.NewClient(cfg, logger)
    sess := session.New(client, session.NewMemoryStore(), logger)
    client.SetTokenSource(sess)
    client.SetUnauthorizedHook(sess.Invalidate)

    return &env{
        server:     server,
        client:     client,
        session:    sess,
        controller: NewController(client, sess, cfg, logger),
    }
}

func (e *env) loginAs(t *testing.T, role string) {
    t.Helper()
    e.server.AddUser("tester", "tester@example.com", "secret", role)
    if err := e.session.Login(context.Background(), "tester", "secret"); err != nil {
        t.Fatalf("login failed: %v", err)
    }
}

func countCalls(calls []string, route string) int {
    n := 0
    for _, c := range calls {
        if c == route {
            n++
        }
    }
    return n
}

func TestFilterMutationIssuesExactlyOneRequest(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(domain.Sweet{Name: "Choco Bar", Category: "Chocolate", Price: 3, Quantity: 5})

    cases := []struct {
        name      string
        mutate    func(ctx context.Context) error
        wantRoute string
    }{
        {
            name:      "non-empty query switches to search",
            mutate:    func(ctx context.Context) error { return e.controller.SetFilters(ctx, Query("choco")) },
            wantRoute: "GET /api/sweets/search",
        },
        {
            name:      "category filter switches to search",
            mutate:    func(ctx context.Context) error { return e.controller.SetFilters(ctx, Query(""), Category("Chocolate")) },
            wantRoute: "GET /api/sweets/search",
        },
        {
            name:      "clearing all filters returns to browse",
            mutate:    func(ctx context.Context) error { return e.controller.Clear(ctx) },
            wantRoute: "GET /api/sweets",
        },
        {
            name:      "empty filter merge stays in browse",
            mutate:    func(ctx context.Context) error { return e.controller.SetFilters(ctx) },
            wantRoute: "GET /api/sweets",
        },
        {
            name:      "page change stays in current mode",
            mutate:    func(ctx context.Context) error { return e.controller.SetPage(ctx, 2) },
            wantRoute: "GET /api/sweets",
        },
        {
            name:      "page size change stays in current mode",
            mutate:    func(ctx context.Context) error { return e.controller.SetPageSize(ctx, 24) },
            wantRoute: "GET /api/sweets",
        },
    }

    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            e.server.ResetCalls()
            if err := tc.mutate(context.Background()); err != nil {
                t.Fatalf("mutation failed: %v", err)
            }

            calls := e.server.Calls()
            if len(calls) != 1 {
                t.Fatalf("expected exactly one request, got %v", calls)
            }
            if calls[0] != tc.wantRoute {
                t.Fatalf("expected %s, got %s", tc.wantRoute, calls[0])
            }
        })
    }
}

func TestSearchResponseNormalization(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(
        domain.Sweet{ID: 1, Name: "Choco Bar", Category: "Chocolate", Price: 3, Quantity: 5},
        domain.Sweet{ID: 2, Name: "Lemon Drop", Category: "Hard Candy", Price: 1, Quantity: 9},
    )

    if err := e.controller.SetFilters(context.Background(), Query("choco")); err != nil {
        t.Fatalf("search failed: %v", err)
    }

    state := e.controller.Snapshot()
    if !state.SearchMode {
        t.Fatal("expected search mode")
    }
    if len(state.Sweets) != 1 || state.Sweets[0].Name != "Choco Bar" {
        t.Fatalf("unexpected results: %+v", state.Sweets)
    }

    want := domain.Pagination{Page: 1, Limit: 12, Total: 1, TotalPages: 1}
    if state.Pagination != want {
        t.Fatalf("expected synthesized pagination %+v, got %+v", want, state.Pagination)
    }
}

func TestBareArrayBrowseNormalization(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(
        domain.Sweet{Name: "A", Category: "Other", Price: 1, Quantity: 1},
        domain.Sweet{Name: "B", Category: "Other", Price: 2, Quantity: 1},
        domain.Sweet{Name: "C", Category: "Other", Price: 3, Quantity: 1},
    )
    e.server.SetBareList(true)

    if err := e.controller.Refresh(context.Background()); err != nil {
        t.Fatalf("fetch failed: %v", err)
    }

    state := e.controller.Snapshot()
    if len(state.Sweets) != 3 {
        t.Fatalf("expected 3 sweets, got %d", len(state.Sweets))
    }
    want := domain.Pagination{Page: 1, Limit: 3, Total: 3, TotalPages: 1}
    if state.Pagination != want {
        t.Fatalf("expected synthesized pagination %+v, got %+v", want, state.Pagination)
    }
}

func TestPurchaseDecrementsOnlyTargetItem(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(
        domain.Sweet{ID: 7, Name: "Fudge", Category: "Chocolate", Price: 4, Quantity: 5},
        domain.Sweet{ID: 8, Name: "Mint", Category: "Mints", Price: 2, Quantity: 3},
    )

    ctx := context.Background()
    if err := e.controller.Refresh(ctx); err != nil {
        t.Fatalf("fetch failed: %v", err)
    }

    if _, err := e.controller.Purchase(ctx, 7, 2); err != nil {
        t.Fatalf("purchase failed: %v", err)
    }

    state := e.controller.Snapshot()
    if got := quantityOf(t, state.Sweets, 7); got != 3 {
        t.Fatalf("expected quantity 3 after purchase, got %d", got)
    }
    if got := quantityOf(t, state.Sweets, 8); got != 3 {
        t.Fatalf("other item must not change, got %d", got)
    }

    // Backend rejects an over-quantity purchase; local state stays put.
    _, err := e.controller.Purchase(ctx, 7, 10)
    if err == nil {
        t.Fatal("expected insufficient stock error")
    }
    var apiErr *api.Error
    if !errors.As(err, &apiErr) || apiErr.Kind != api.KindBadRequest {
        t.Fatalf("expected bad request error, got %v", err)
    }
    if got := quantityOf(t, e.controller.Snapshot().Sweets, 7); got != 3 {
        t.Fatalf("rejected purchase must not change quantity, got %d", got)
    }
}

func TestPurchaseValidatesQuantityLocally(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.ResetCalls()

    if _, err := e.controller.Purchase(context.Background(), 1, 0); !api.IsValidation(err) {
        t.Fatalf("expected validation error, got %v", err)
    }
    if calls := e.server.Calls(); len(calls) != 0 {
        t.Fatalf("invalid purchase must not hit the network, got %v", calls)
    }
}

func TestRestockIncrementsQuantity(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleAdmin)
    e.server.Seed(domain.Sweet{ID: 3, Name: "Toffee", Category: "Toffee", Price: 2, Quantity: 4})

    ctx := context.Background()
    if err := e.controller.Refresh(ctx); err != nil {
        t.Fatalf("fetch failed: %v", err)
    }

    if _, err := e.controller.Restock(ctx, 3, 6); err != nil {
        t.Fatalf("restock failed: %v", err)
    }
    if got := quantityOf(t, e.controller.Snapshot().Sweets, 3); got != 10 {
        t.Fatalf("expected quantity 10 after restock, got %d", got)
    }
}

func TestClearThenEmptyFilterMergeIsBrowsePageOne(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)

    ctx := context.Background()
    if err := e.controller.SetFilters(ctx, Query("choco"), Category("Chocolate")); err != nil {
        t.Fatalf("set filters failed: %v", err)
    }
    if err := e.controller.SetPage(ctx, 3); err != nil {
        t.Fatalf("set page failed: %v", err)
    }
    if err := e.controller.Clear(ctx); err != nil {
        t.Fatalf("clear failed: %v", err)
    }
    if err := e.controller.SetFilters(ctx); err != nil {
        t.Fatalf("empty merge failed: %v", err)
    }

    state := e.controller.Snapshot()
    if state.SearchMode {
        t.Fatal("expected browse mode after clear + empty merge")
    }
    if state.Page != 1 {
        t.Fatalf("expected page 1, got %d", state.Page)
    }
    if state.Filters.Active() {
        t.Fatalf("expected empty filters, got %+v", state.Filters)
    }
}

func TestSetPageIsIdempotentButAlwaysFetches(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)

    ctx := context.Background()
    e.server.ResetCalls()

    if err := e.controller.SetPage(ctx, 2); err != nil {
        t.Fatalf("set page failed: %v", err)
    }
    first := e.controller.Snapshot()

    if err := e.controller.SetPage(ctx, 2); err != nil {
        t.Fatalf("set page failed: %v", err)
    }
    second := e.controller.Snapshot()

    if got := countCalls(e.server.Calls(), "GET /api/sweets"); got != 2 {
        t.Fatalf("expected two fetches, got %d", got)
    }
    if first.Page != second.Page || first.PageSize != second.PageSize || first.SearchMode != second.SearchMode {
        t.Fatalf("query state changed between identical mutations: %+v vs %+v", first, second)
    }
}

func TestSetPageSizeResetsToFirstPage(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)

    ctx := context.Background()
    if err := e.controller.SetPage(ctx, 3); err != nil {
        t.Fatalf("set page failed: %v", err)
    }
    e.server.ResetCalls()

    if err := e.controller.SetPageSize(ctx, 24); err != nil {
        t.Fatalf("set page size failed: %v", err)
    }

    if calls := e.server.Calls(); len(calls) != 1 || calls[0] != "GET /api/sweets" {
        t.Fatalf("expected exactly one browse request, got %v", calls)
    }
    state := e.controller.Snapshot()
    if state.Page != 1 {
        t.Fatalf("expected page reset to 1, got %d", state.Page)
    }
    if state.PageSize != 24 {
        t.Fatalf("expected page size 24, got %d", state.PageSize)
    }
}

func TestStaleFetchCompletionIsDiscarded(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(
        domain.Sweet{ID: 1, Name: "Browse Only", Category: "Other", Price: 1, Quantity: 1},
        domain.Sweet{ID: 2, Name: "Choco Fresh", Category: "Chocolate", Price: 2, Quantity: 4},
    )

    ctx := context.Background()
    arrived, release := e.server.HoldNextBrowse(0)

    done := make(chan error, 1)
    go func() { done <- e.controller.Refresh(ctx) }()
    <-arrived

    // A newer query completes while the browse fetch is still stalled.
    if err := e.controller.SetFilters(ctx, Query("choco")); err != nil {
        t.Fatalf("search failed: %v", err)
    }

    release()
    if err := <-done; err != nil {
        t.Fatalf("stalled fetch returned error: %v", err)
    }

    state := e.controller.Snapshot()
    if !state.SearchMode {
        t.Fatal("expected search mode to survive the stale completion")
    }
    if len(state.Sweets) != 1 || state.Sweets[0].Name != "Choco Fresh" {
        t.Fatalf("stale browse result overwrote published state: %+v", state.Sweets)
    }
    want := domain.Pagination{Page: 1, Limit: 12, Total: 1, TotalPages: 1}
    if state.Pagination != want {
        t.Fatalf("expected pagination %+v, got %+v", want, state.Pagination)
    }
}

func TestStaleFetchErrorDoesNotClearPublishedState(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(
        domain.Sweet{ID: 1, Name: "Browse Only", Category: "Other", Price: 1, Quantity: 1},
        domain.Sweet{ID: 2, Name: "Choco Fresh", Category: "Chocolate", Price: 2, Quantity: 4},
    )

    ctx := context.Background()
    arrived, release := e.server.HoldNextBrowse(http.StatusInternalServerError)

    done := make(chan error, 1)
    go func() { done <- e.controller.Refresh(ctx) }()
    <-arrived

    if err := e.controller.SetFilters(ctx, Query("choco")); err != nil {
        t.Fatalf("search failed: %v", err)
    }

    release()
    if err := <-done; err != nil {
        t.Fatalf("stale failure must be discarded, got %v", err)
    }

    state := e.controller.Snapshot()
    if len(state.Sweets) != 1 || state.Sweets[0].Name != "Choco Fresh" {
        t.Fatalf("stale failure cleared published state: %+v", state.Sweets)
    }
    if state.Err != nil {
        t.Fatalf("stale failure must not publish an error, got %v", state.Err)
    }
}

func TestAdminOperationsBlockedLocallyForNonAdmin(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.ResetCalls()

    ctx := context.Background()
    ops := map[string]func() error{
        "restock": func() error { _, err := e.controller.Restock(ctx, 1, 5); return err },
        "add": func() error {
            _, err := e.controller.Add(ctx, domain.CreateSweetRequest{Name: "X", Category: "Other", Price: 1})
            return err
        },
        "update": func() error {
            _, err := e.controller.Update(ctx, 1, domain.UpdateSweetRequest{Name: "X", Category: "Other", Price: 1})
            return err
        },
        "delete": func() error { return e.controller.Delete(ctx, 1) },
    }

    for name, op := range ops {
        if err := op(); !errors.Is(err, session.ErrAdminRequired) {
            t.Fatalf("%s: expected ErrAdminRequired, got %v", name, err)
        }
    }
    if calls := e.server.Calls(); len(calls) != 0 {
        t.Fatalf("blocked operations must not hit the network, got %v", calls)
    }
}

func TestAddPrependsInBrowseMode(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleAdmin)
    e.server.Seed(domain.Sweet{Name: "Old", Category: "Other", Price: 1, Quantity: 1})

    ctx := context.Background()
    if err := e.controller.Refresh(ctx); err != nil {
        t.Fatalf("fetch failed: %v", err)
    }
    e.server.ResetCalls()

    created, err := e.controller.Add(ctx, domain.CreateSweetRequest{
        Name: "Brand New", Category: "Chocolate", Price: 2, Quantity: 3,
    })
    if err != nil {
        t.Fatalf("add failed: %v", err)
    }

    state := e.controller.Snapshot()
    if len(state.Sweets) != 2 || state.Sweets[0].ID != created.ID {
        t.Fatalf("expected new sweet prepended, got %+v", state.Sweets)
    }
    if got := countCalls(e.server.Calls(), "GET /api/sweets"); got != 0 {
        t.Fatal("browse-mode add must not refetch")
    }
}

func TestAddRefetchesInSearchMode(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleAdmin)
    e.server.Seed(domain.Sweet{Name: "Choco Old", Category: "Chocolate", Price: 1, Quantity: 1})

    ctx := context.Background()
    if err := e.controller.SetFilters(ctx, Query("choco")); err != nil {
        t.Fatalf("search failed: %v", err)
    }
    e.server.ResetCalls()

    if _, err := e.controller.Add(ctx, domain.CreateSweetRequest{
        Name: "Choco New", Category: "Chocolate", Price: 2, Quantity: 3,
    }); err != nil {
        t.Fatalf("add failed: %v", err)
    }

    if got := countCalls(e.server.Calls(), "GET /api/sweets/search"); got != 1 {
        t.Fatalf("search-mode add must refetch once, calls: %v", e.server.Calls())
    }
    state := e.controller.Snapshot()
    if len(state.Sweets) != 2 {
        t.Fatalf("expected refetched results to include both sweets, got %+v", state.Sweets)
    }
}

func TestUpdateReplacesItemInPlace(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleAdmin)
    e.server.Seed(
        domain.Sweet{ID: 1, Name: "First", Category: "Other", Price: 1, Quantity: 1},
        domain.Sweet{ID: 2, Name: "Second", Category: "Other", Price: 2, Quantity: 2},
    )

    ctx := context.Background()
    if err := e.controller.Refresh(ctx); err != nil {
        t.Fatalf("fetch failed: %v", err)
    }

    if _, err := e.controller.Update(ctx, 2, domain.UpdateSweetRequest{
        Name: "Renamed", Category: "Caramel", Price: 9, Quantity: 7,
    }); err != nil {
        t.Fatalf("update failed: %v", err)
    }

    state := e.controller.Snapshot()
    if state.Sweets[1].Name != "Renamed" || state.Sweets[1].Quantity != 7 {
        t.Fatalf("expected in-place replacement, got %+v", state.Sweets[1])
    }
    if state.Sweets[0].Name != "First" {
        t.Fatalf("other item must not change, got %+v", state.Sweets[0])
    }
}

func TestDeleteRemovesItem(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleAdmin)
    e.server.Seed(
        domain.Sweet{ID: 1, Name: "Keep", Category: "Other", Price: 1, Quantity: 1},
        domain.Sweet{ID: 2, Name: "Drop", Category: "Other", Price: 2, Quantity: 2},
    )

    ctx := context.Background()
    if err := e.controller.Refresh(ctx); err != nil {
        t.Fatalf("fetch failed: %v", err)
    }

    if err := e.controller.Delete(ctx, 2); err != nil {
        t.Fatalf("delete failed: %v", err)
    }

    state := e.controller.Snapshot()
    if len(state.Sweets) != 1 || state.Sweets[0].ID != 1 {
        t.Fatalf("expected only sweet 1 to remain, got %+v", state.Sweets)
    }
}

func TestFetchFailureClearsPublishedStateOnly(t *testing.T) {
    e := newEnv(t)
    e.loginAs(t, domain.RoleUser)
    e.server.Seed(domain.Sweet{Name: "Choco Bar", Category: "Chocolate", Price: 3, Quantity: 5})

    ctx := context.Background()
    if err := e.controller.SetFilters(ctx, Query("choco")); err != nil {
        t.Fatalf("search failed: %v", err)
    }
    if len(e.controller.Snapshot().Sweets) != 1 {
        t.Fatal("expected one published sweet before failure")
    }

    // An unreachable backend fails the next fetch.
    e.server.Close()

    if err := e.controller.Refresh(ctx); err == nil {
        t.Fatal("expected fetch error")
    }

    state := e.controller.Snapshot()
    if len(state.Sweets) != 0 {
        t.Fatalf("failed fetch must clear the collection, got %+v", state.Sweets)
    }
    if state.Err == nil {
        t.Fatal("expected published error")
    }
    if !state.SearchMode || state.Filters.Query != "choco" {
        t.Fatalf("failure must not alter query state, got %+v", state)
    }
}

func quantityOf(t *testing.T, sweets []domain.Sweet, id int64) int {
    t.Helper()
    for _, s := range sweets {
        if s.ID == id {
            return s.Quantity
        }
    }
    t.Fatalf("sweet %d not in published collection", id)
    return 0
}
