package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "log"
    "os"
    "text/tabwriter"

    "github.com/joho/godotenv"
    "go.uber.org/zap"

    "github.com/Dev020403/sweet-shop-management-system/internal/api"
    "github.com/Dev020403/sweet-shop-management-system/internal/catalog"
    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
    "github.com/Dev020403/sweet-shop-management-system/internal/session"
    "github.com/Dev020403/sweet-shop-management-system/pkg/config"
)

const usage = `Usage: sweetshop <command> [flags]

Commands:
  register   create an account
  login      authenticate and store the credential
  logout     discard the stored credential
  whoami     show the current session
  list       browse sweets (paginated)
  search     search sweets by name/category/price
  get        show one sweet
  add        add a sweet (admin)
  update     update a sweet (admin)
  delete     delete a sweet (admin)
  purchase   purchase a sweet
  restock    restock a sweet (admin)
`

func main() {
    // .env is optional; environment variables win either way.
    _ = godotenv.Load()

    cfg, err := config.Load()
    if err != nil {
        log.Fatal("Failed to load config:", err)
    }

    logger, err := newLogger(cfg.LogLevel)
    if err != nil {
        log.Fatal("Failed to create logger:", err)
    }
    defer logger.Sync()

    if len(os.Args) < 2 {
        fmt.Fprint(os.Stderr, usage)
        os.Exit(2)
    }

    client := api.NewClient(cfg, logger)
    store := session.NewFileStore(cfg.CredentialsFile)
    sess := session.New(client, store, logger)
    client.SetTokenSource(sess)
    client.SetUnauthorizedHook(sess.Invalidate)
    sess.Restore()

    controller := catalog.NewController(client, sess, cfg, logger)

    ctx := context.Background()
    if err := runCommand(ctx, os.Args[1], os.Args[2:], sess, controller); err != nil {
        fmt.Fprintln(os.Stderr, "Error:", err)
        os.Exit(1)
    }
}

func newLogger(level string) (*zap.Logger, error) {
    if level == "debug" {
        return zap.NewDevelopment()
    }
    return zap.NewProduction()
}

func runCommand(ctx context.Context, command string, args []string, sess *session.Session, controller *catalog.Controller) error {
    switch command {
    case "register":
        return runRegister(ctx, args, sess)
    case "login":
        return runLogin(ctx, args, sess)
    case "logout":
        sess.Logout()
        fmt.Println("Logged out.")
        return nil
    case "whoami":
        return runWhoami(sess)
    case "list":
        return runList(ctx, args, controller)
    case "search":
        return runSearch(ctx, args, controller)
    case "get":
        return runGet(ctx, args, controller)
    case "add":
        return runAdd(ctx, args, controller)
    case "update":
        return runUpdate(ctx, args, controller)
    case "delete":
        return runDelete(ctx, args, controller)
    case "purchase":
        return runPurchase(ctx, args, controller)
    case "restock":
        return runRestock(ctx, args, controller)
    default:
        fmt.Fprint(os.Stderr, usage)
        return fmt.Errorf("unknown command %q", command)
    }
}

func runRegister(ctx context.Context, args []string, sess *session.Session) error {
    fs := flag.NewFlagSet("register", flag.ExitOnError)
    username := fs.String("username", "", "username")
    email := fs.String("email", "", "email address")
    password := fs.String("password", "", "password")
    role := fs.String("role", domain.RoleUser, "account role (USER or ADMIN)")
    fs.Parse(args)

    if *username == "" || *email == "" || *password == "" {
        return errors.New("register requires -username, -email and -password")
    }

    resp, err := sess.Register(ctx, *username, *email, *password, *role)
    if err != nil {
        return err
    }
    fmt.Printf("Registered %s <%s>. Please log in.\n", resp.Username, resp.Email)
    return nil
}

func runLogin(ctx context.Context, args []string, sess *session.Session) error {
    fs := flag.NewFlagSet("login", flag.ExitOnError)
    user := fs.String("user", "", "username or email")
    password := fs.String("password", "", "password")
    fs.Parse(args)

    if *user == "" || *password == "" {
        return errors.New("login requires -user and -password")
    }

    if err := sess.Login(ctx, *user, *password); err != nil {
        return err
    }
    username, _, _ := sess.User()
    fmt.Printf("Logged in as %s (%s).\n", username, sess.State())
    return nil
}

func runWhoami(sess *session.Session) error {
    username, email, ok := sess.User()
    if !ok {
        fmt.Println("Not logged in.")
        return nil
    }
    fmt.Printf("%s <%s> [%s]\n", username, email, sess.State())
    return nil
}

func runList(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("list", flag.ExitOnError)
    page := fs.Int("page", 1, "page number")
    size := fs.Int("size", 0, "page size (0 = default)")
    category := fs.String("category", "", "filter by category")
    fs.Parse(args)

    if *size > 0 {
        if err := controller.SetPageSize(ctx, *size); err != nil {
            return err
        }
    }
    if *category != "" {
        if err := controller.SetFilters(ctx, catalog.Category(*category)); err != nil {
            return err
        }
    }
    if err := controller.SetPage(ctx, *page); err != nil {
        return err
    }
    printState(controller.Snapshot())
    return nil
}

func runSearch(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("search", flag.ExitOnError)
    query := fs.String("query", "", "free-text name query")
    category := fs.String("category", "", "filter by category")
    minPrice := fs.Float64("min-price", -1, "minimum price")
    maxPrice := fs.Float64("max-price", -1, "maximum price")
    fs.Parse(args)

    changes := []catalog.FilterChange{catalog.Query(*query), catalog.Category(*category)}
    if *minPrice >= 0 {
        changes = append(changes, catalog.MinPrice(minPrice))
    }
    if *maxPrice >= 0 {
        changes = append(changes, catalog.MaxPrice(maxPrice))
    }

    if err := controller.SetFilters(ctx, changes...); err != nil {
        return err
    }
    printState(controller.Snapshot())
    return nil
}

func runGet(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("get", flag.ExitOnError)
    id := fs.Int64("id", 0, "sweet id")
    fs.Parse(args)

    sweet, err := controller.Get(ctx, *id)
    if err != nil {
        return err
    }
    printSweets(sweet)
    return nil
}

func runAdd(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("add", flag.ExitOnError)
    name := fs.String("name", "", "sweet name")
    category := fs.String("category", "", "sweet category")
    price := fs.Float64("price", 0, "price")
    quantity := fs.Int("quantity", 0, "initial stock")
    description := fs.String("description", "", "description")
    image := fs.String("image", "", "image URL")
    fs.Parse(args)

    created, err := controller.Add(ctx, domain.CreateSweetRequest{
        Name:        *name,
        Category:    *category,
        Price:       *price,
        Quantity:    *quantity,
        Description: *description,
        ImageURL:    *image,
    })
    if err != nil {
        return err
    }
    fmt.Printf("Added sweet #%d.\n", created.ID)
    return nil
}

func runUpdate(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("update", flag.ExitOnError)
    id := fs.Int64("id", 0, "sweet id")
    name := fs.String("name", "", "sweet name")
    category := fs.String("category", "", "sweet category")
    price := fs.Float64("price", 0, "price")
    quantity := fs.Int("quantity", 0, "stock")
    description := fs.String("description", "", "description")
    image := fs.String("image", "", "image URL")
    fs.Parse(args)

    updated, err := controller.Update(ctx, *id, domain.UpdateSweetRequest{
        Name:        *name,
        Category:    *category,
        Price:       *price,
        Quantity:    *quantity,
        Description: *description,
        ImageURL:    *image,
    })
    if err != nil {
        return err
    }
    printSweets(updated)
    return nil
}

func runDelete(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("delete", flag.ExitOnError)
    id := fs.Int64("id", 0, "sweet id")
    fs.Parse(args)

    if err := controller.Delete(ctx, *id); err != nil {
        return err
    }
    fmt.Printf("Deleted sweet #%d.\n", *id)
    return nil
}

func runPurchase(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("purchase", flag.ExitOnError)
    id := fs.Int64("id", 0, "sweet id")
    quantity := fs.Int("quantity", 1, "quantity to purchase")
    fs.Parse(args)

    updated, err := controller.Purchase(ctx, *id, *quantity)
    if err != nil {
        return err
    }
    fmt.Printf("Purchased %d × sweet #%d; %d left in stock.\n", *quantity, *id, updated.Quantity)
    return nil
}

func runRestock(ctx context.Context, args []string, controller *catalog.Controller) error {
    fs := flag.NewFlagSet("restock", flag.ExitOnError)
    id := fs.Int64("id", 0, "sweet id")
    quantity := fs.Int("quantity", 1, "quantity to add")
    fs.Parse(args)

    updated, err := controller.Restock(ctx, *id, *quantity)
    if err != nil {
        return err
    }
    fmt.Printf("Restocked sweet #%d; now %d in stock.\n", *id, updated.Quantity)
    return nil
}

func printState(state catalog.State) {
    printSweets(state.Sweets...)
    p := state.Pagination
    fmt.Printf("Page %d/%d (%d items total)\n", p.Page, p.TotalPages, p.Total)
}

func printSweets(sweets ...domain.Sweet) {
    w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
    fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tQTY")
    for _, s := range sweets {
        fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\n", s.ID, s.Name, s.Category, s.Price, s.Quantity)
    }
    w.Flush()
}
