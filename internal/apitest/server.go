// Package apitest hosts an in-memory sweet shop backend for the test
// suite. It mirrors the real REST surface closely enough to exercise the
// client end to end: JWT auth with roles, paginated listing, search,
// purchase with stock checking, and the admin-only mutations.
package apitest

import (
    "math"
    "net/http"
    "net/http/httptest"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/golang-jwt/jwt/v5"

    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
)

const signingSecret = "apitest-signing-secret"

type account struct {
    Username string
    Email    string
    Password string
    Role     string
}

// browseHold stalls one browse request so tests can overlap fetches.
type browseHold struct {
    arrived chan struct{}
    release chan struct{}
    status  int
}

// Server is the fake backend. Close it when the test is done.
type Server struct {
    httpServer *httptest.Server

    mu       sync.Mutex
    accounts map[string]account
    sweets   map[int64]domain.Sweet
    nextID   int64
    calls    []string
    bareList bool
    hold     *browseHold
    now      func() time.Time
}

func NewServer() *Server {
    gin.SetMode(gin.TestMode)

    s := &Server{
        accounts: make(map[string]account),
        sweets:   make(map[int64]domain.Sweet),
        nextID:   1,
        now:      time.Now,
    }

    router := gin.New()
    router.Use(s.recordCall)

    router.POST("/api/auth/login", s.login)
    router.POST("/api/auth/register", s.register)

    authed := router.Group("/api/sweets", s.requireAuth)
    {
        authed.GET("", s.listSweets)
        authed.GET("/search", s.searchSweets)
        authed.GET("/:id", s.getSweet)
        authed.POST("/:id/purchase", s.purchaseSweet)

        admin := authed.Group("", s.requireAdmin)
        {
            admin.POST("", s.createSweet)
            admin.PUT("/:id", s.updateSweet)
            admin.DELETE("/:id", s.deleteSweet)
            admin.POST("/:id/restock", s.restockSweet)
        }
    }

    s.httpServer = httptest.NewServer(router)
    return s
}

func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

// AddUser seeds an account and returns nothing; log in through the API.
func (s *Server) AddUser(username, email, password, role string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.accounts[username] = account{Username: username, Email: email, Password: password, Role: role}
}

// Seed installs sweets directly, assigning IDs when missing.
func (s *Server) Seed(sweets ...domain.Sweet) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, sw := range sweets {
        if sw.ID == 0 {
            sw.ID = s.nextID
        }
        if sw.ID >= s.nextID {
            s.nextID = sw.ID + 1
        }
        s.sweets[sw.ID] = sw
    }
}

// Sweet returns the current server-side state of one sweet.
func (s *Server) Sweet(id int64) (domain.Sweet, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sw, ok := s.sweets[id]
    return sw, ok
}

// Calls lists the route patterns hit since the last reset, in order.
func (s *Server) Calls() []string {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]string, len(s.calls))
    copy(out, s.calls)
    return out
}

func (s *Server) ResetCalls() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.calls = nil
}

// SetBareList makes the browse endpoint answer with a bare JSON array and
// no pagination object, to exercise envelope normalization.
func (s *Server) SetBareList(bare bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.bareList = bare
}

// HoldNextBrowse stalls the next browse request until release is called;
// arrived is closed once the stalled request reaches the server. A non-zero
// status makes the stalled request fail with it instead of answering.
func (s *Server) HoldNextBrowse(status int) (arrived <-chan struct{}, release func()) {
    h := &browseHold{
        arrived: make(chan struct{}),
        release: make(chan struct{}),
        status:  status,
    }
    s.mu.Lock()
    s.hold = h
    s.mu.Unlock()
    return h.arrived, func() { close(h.release) }
}

// SignToken mints a token the server will accept; a negative ttl produces
// an expired credential.
func (s *Server) SignToken(username, role string, ttl time.Duration) string {
    claims := jwt.MapClaims{
        "sub":  username,
        "role": role,
        "exp":  jwt.NewNumericDate(s.now().Add(ttl)),
        "iat":  jwt.NewNumericDate(s.now()),
    }
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := token.SignedString([]byte(signingSecret))
    if err != nil {
        panic(err)
    }
    return signed
}

func (s *Server) recordCall(c *gin.Context) {
    s.mu.Lock()
    s.calls = append(s.calls, c.Request.Method+" "+c.FullPath())
    s.mu.Unlock()
    c.Next()
}

func (s *Server) requireAuth(c *gin.Context) {
    header := c.GetHeader("Authorization")
    parts := strings.SplitN(header, " ", 2)
    if len(parts) != 2 || parts[0] != "Bearer" {
        c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header required"})
        return
    }

    token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, jwt.ErrSignatureInvalid
        }
        return []byte(signingSecret), nil
    })
    if err != nil || !token.Valid {
        c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
        return
    }

    claims := token.Claims.(jwt.MapClaims)
    role, _ := claims["role"].(string)
    c.Set("role", role)
    c.Next()
}

func (s *Server) requireAdmin(c *gin.Context) {
    if c.GetString("role") != domain.RoleAdmin {
        c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin access required"})
        return
    }
    c.Next()
}

func (s *Server) login(c *gin.Context) {
    var req domain.LoginRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request format"})
        return
    }

    s.mu.Lock()
    var found *account
    for _, acc := range s.accounts {
        if acc.Username == req.UsernameOrEmail || acc.Email == req.UsernameOrEmail {
            a := acc
            found = &a
            break
        }
    }
    s.mu.Unlock()

    if found == nil || found.Password != req.Password {
        c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
        return
    }

    c.JSON(http.StatusOK, domain.LoginResponse{
        Token:    s.SignToken(found.Username, found.Role, time.Hour),
        Username: found.Username,
        Email:    found.Email,
    })
}

func (s *Server) register(c *gin.Context) {
    var req domain.RegisterRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request format"})
        return
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    if _, exists := s.accounts[req.Username]; exists {
        c.JSON(http.StatusConflict, gin.H{"message": "Username already taken"})
        return
    }
    role := req.Role
    if role == "" {
        role = domain.RoleUser
    }
    s.accounts[req.Username] = account{
        Username: req.Username,
        Email:    req.Email,
        Password: req.Password,
        Role:     role,
    }

    c.JSON(http.StatusCreated, domain.RegisterResponse{
        Username: req.Username,
        Email:    req.Email,
        Message:  "User registered successfully",
    })
}

func (s *Server) listSweets(c *gin.Context) {
    s.mu.Lock()
    hold := s.hold
    s.hold = nil
    s.mu.Unlock()
    if hold != nil {
        close(hold.arrived)
        <-hold.release
        if hold.status != 0 {
            c.JSON(hold.status, gin.H{"message": "Internal server error"})
            return
        }
    }

    page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
    limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
    if page < 1 {
        page = 1
    }
    if limit < 1 {
        limit = 10
    }

    s.mu.Lock()
    matched := s.filterLocked(c.Query("category"), "", c.Query("minPrice"), c.Query("maxPrice"))
    bare := s.bareList
    s.mu.Unlock()

    total := len(matched)
    totalPages := int(math.Ceil(float64(total) / float64(limit)))
    start := (page - 1) * limit
    if start > total {
        start = total
    }
    end := start + limit
    if end > total {
        end = total
    }
    pageItems := matched[start:end]

    if bare {
        c.JSON(http.StatusOK, pageItems)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data": pageItems,
        "pagination": domain.Pagination{
            Page:       page,
            Limit:      limit,
            Total:      total,
            TotalPages: totalPages,
        },
    })
}

func (s *Server) searchSweets(c *gin.Context) {
    s.mu.Lock()
    matched := s.filterLocked(c.Query("category"), c.Query("name"), c.Query("minPrice"), c.Query("maxPrice"))
    s.mu.Unlock()

    c.JSON(http.StatusOK, gin.H{
        "data":  matched,
        "total": len(matched),
    })
}

// filterLocked returns all sweets matching the given criteria, ordered by ID.
func (s *Server) filterLocked(category, name, minPrice, maxPrice string) []domain.Sweet {
    minVal, hasMin := parsePrice(minPrice)
    maxVal, hasMax := parsePrice(maxPrice)

    matched := make([]domain.Sweet, 0, len(s.sweets))
    for _, sw := range s.sweets {
        if category != "" && sw.Category != category {
            continue
        }
        if name != "" && !strings.Contains(strings.ToLower(sw.Name), strings.ToLower(name)) {
            continue
        }
        if hasMin && sw.Price < minVal {
            continue
        }
        if hasMax && sw.Price > maxVal {
            continue
        }
        matched = append(matched, sw)
    }
    sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
    return matched
}

func (s *Server) getSweet(c *gin.Context) {
    _, sweet, ok := s.lookup(c)
    if !ok {
        return
    }
    c.JSON(http.StatusOK, sweet)
}

func (s *Server) createSweet(c *gin.Context) {
    var req domain.CreateSweetRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request format"})
        return
    }

    s.mu.Lock()
    sweet := domain.Sweet{
        ID:          s.nextID,
        Name:        req.Name,
        Category:    req.Category,
        Price:       req.Price,
        Quantity:    req.Quantity,
        Description: req.Description,
        ImageURL:    req.ImageURL,
    }
    s.nextID++
    s.sweets[sweet.ID] = sweet
    s.mu.Unlock()

    c.JSON(http.StatusCreated, sweet)
}

func (s *Server) updateSweet(c *gin.Context) {
    id, _, ok := s.lookup(c)
    if !ok {
        return
    }

    var req domain.UpdateSweetRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request format"})
        return
    }

    s.mu.Lock()
    sweet := domain.Sweet{
        ID:          id,
        Name:        req.Name,
        Category:    req.Category,
        Price:       req.Price,
        Quantity:    req.Quantity,
        Description: req.Description,
        ImageURL:    req.ImageURL,
    }
    s.sweets[id] = sweet
    s.mu.Unlock()

    c.JSON(http.StatusOK, sweet)
}

func (s *Server) deleteSweet(c *gin.Context) {
    id, _, ok := s.lookup(c)
    if !ok {
        return
    }

    s.mu.Lock()
    delete(s.sweets, id)
    s.mu.Unlock()

    c.JSON(http.StatusOK, gin.H{"message": "Sweet deleted successfully"})
}

func (s *Server) purchaseSweet(c *gin.Context) {
    id, _, ok := s.lookup(c)
    if !ok {
        return
    }

    var req domain.PurchaseRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request format"})
        return
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    sweet := s.sweets[id]
    if sweet.Quantity < req.Quantity {
        c.JSON(http.StatusBadRequest, gin.H{
            "message":   "Insufficient stock",
            "available": sweet.Quantity,
            "requested": req.Quantity,
        })
        return
    }
    sweet.Quantity -= req.Quantity
    s.sweets[id] = sweet

    c.JSON(http.StatusOK, sweet)
}

func (s *Server) restockSweet(c *gin.Context) {
    id, _, ok := s.lookup(c)
    if !ok {
        return
    }

    var req domain.RestockRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request format"})
        return
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    sweet := s.sweets[id]
    sweet.Quantity += req.Quantity
    s.sweets[id] = sweet

    c.JSON(http.StatusOK, sweet)
}

func parsePrice(raw string) (float64, bool) {
    if raw == "" {
        return 0, false
    }
    v, err := strconv.ParseFloat(raw, 64)
    if err != nil {
        return 0, false
    }
    return v, true
}

func (s *Server) lookup(c *gin.Context) (int64, domain.Sweet, bool) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid sweet id"})
        return 0, domain.Sweet{}, false
    }

    s.mu.Lock()
    sweet, exists := s.sweets[id]
    s.mu.Unlock()
    if !exists {
        c.JSON(http.StatusNotFound, gin.H{"message": "Sweet not found"})
        return 0, domain.Sweet{}, false
    }
    return id, sweet, true
}
