package domain

// Role values carried in the token's "role" claim.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

type Sweet struct {
    ID          int64   `json:"id"`
    Name        string  `json:"name"`
    Category    string  `json:"category"`
    Price       float64 `json:"price"`
    Quantity    int     `json:"quantity"`
    Description string  `json:"description,omitempty"`
    ImageURL    string  `json:"image,omitempty"`
}

// Categories returns the known sweet categories in display order.
func Categories() []string {
    return []string{
        "Chocolate",
        "Gummy",
        "Hard Candy",
        "Lollipops",
        "Caramel",
        "Sour Candy",
        "Mints",
        "Toffee",
        "Marshmallow",
        "Cookies",
        "Cakes",
        "Other",
    }
}

// Filters holds the active listing filters. Zero values mean "no filter".
type Filters struct {
    Query    string
    Category string
    MinPrice *float64
    MaxPrice *float64
}

// Active reports whether any filter is set, which switches the listing
// from the paginated browse endpoint to the search endpoint.
func (f Filters) Active() bool {
    return f.Query != "" || f.Category != "" || f.MinPrice != nil || f.MaxPrice != nil
}

type Pagination struct {
    Page       int `json:"page"`
    Limit      int `json:"limit"`
    Total      int `json:"total"`
    TotalPages int `json:"totalPages"`
}

type LoginRequest struct {
    UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
    Password        string `json:"password" binding:"required"`
}

type LoginResponse struct {
    Token    string `json:"token"`
    Username string `json:"username"`
    Email    string `json:"email"`
}

type RegisterRequest struct {
    Username string `json:"username" binding:"required"`
    Email    string `json:"email" binding:"required,email"`
    Password string `json:"password" binding:"required,min=6"`
    Role     string `json:"role"`
}

type RegisterResponse struct {
    Username string `json:"username"`
    Email    string `json:"email"`
    Message  string `json:"message,omitempty"`
}

type CreateSweetRequest struct {
    Name        string  `json:"name" binding:"required"`
    Category    string  `json:"category" binding:"required"`
    Price       float64 `json:"price" binding:"required,gte=0"`
    Quantity    int     `json:"quantity" binding:"gte=0"`
    Description string  `json:"description,omitempty"`
    ImageURL    string  `json:"image,omitempty"`
}

type UpdateSweetRequest struct {
    Name        string  `json:"name" binding:"required"`
    Category    string  `json:"category" binding:"required"`
    Price       float64 `json:"price" binding:"required,gte=0"`
    Quantity    int     `json:"quantity" binding:"gte=0"`
    Description string  `json:"description,omitempty"`
    ImageURL    string  `json:"image,omitempty"`
}

type PurchaseRequest struct {
    Quantity int `json:"quantity" binding:"required,min=1"`
}

type RestockRequest struct {
    Quantity int `json:"quantity" binding:"required,min=1"`
}
