// storefront is a terminal client for the storefront API: browse the catalog,
// manage a cart that persists across runs, and check out. It drives the same
// cart and checkout packages a graphical frontend would.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/kirashop/storefront/internal/apiclient"
	"github.com/kirashop/storefront/internal/cart"
	"github.com/kirashop/storefront/internal/checkout"
)

func main() {
	var (
		apiURL   string
		stateDir string
	)

	flag.StringVar(&apiURL, "api-url", "http://localhost:8080", "storefront API base URL")
	flag.StringVar(&stateDir, "state-dir", "", "directory for the persisted cart (defaults to the user config dir)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, apiURL, stateDir); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, apiURL, stateDir string) error {
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return errors.Wrap(err, "resolve config dir")
		}
		stateDir = filepath.Join(base, "kira-storefront")
	}

	kv, err := cart.NewFileKV(stateDir)
	if err != nil {
		return errors.Wrap(err, "open cart storage")
	}

	client := apiclient.New(apiURL)
	store := cart.NewStore(kv, nil)
	flow := checkout.NewFlow(store, client, client, nil)

	s := &session{client: client, store: store, flow: flow}
	return s.repl(ctx)
}

type session struct {
	client *apiclient.Client
	store  *cart.Store
	flow   *checkout.Flow
}

func (s *session) repl(ctx context.Context) error {
	fmt.Println("kira storefront (type 'help' for commands)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := s.dispatch(ctx, cmd, args); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (s *session) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		s.help()
		return nil
	case "products":
		return s.products(ctx)
	case "add":
		return s.add(ctx, args)
	case "remove":
		return s.remove(args)
	case "qty":
		return s.setQuantity(args)
	case "clear":
		s.store.Clear()
		fmt.Println("cart cleared")
		return nil
	case "cart":
		s.printCart()
		return nil
	case "register":
		return s.register(ctx, args)
	case "login":
		return s.login(ctx, args)
	case "me":
		return s.me(ctx)
	case "orders":
		return s.orders(ctx)
	case "checkout":
		return s.checkout(ctx)
	default:
		return errors.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func (s *session) help() {
	fmt.Print(`commands:
  products              list the catalog
  add <id> [qty]        add a product to the cart
  remove <id>           remove a product from the cart
  qty <id> <n>          set a line quantity (0 removes)
  cart                  show the cart
  clear                 empty the cart
  register <user> <email>   create an account (prompts for password)
  login <email>             sign in (prompts for password)
  me                    show the signed-in account
  orders                list your orders
  checkout              place an order from the cart
  quit                  exit
`)
}

func (s *session) products(ctx context.Context) error {
	products, err := s.client.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		stock := ""
		if !p.InStock {
			stock = "  (out of stock)"
		}
		fmt.Printf("%4d  %-24s %8.2f%s\n", p.ID, p.Name, p.Price, stock)
	}
	return nil
}

func (s *session) add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: add <id> [qty]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.New("product id must be a number")
	}
	qty := 1
	if len(args) > 1 {
		if qty, err = strconv.Atoi(args[1]); err != nil || qty < 1 {
			return errors.New("quantity must be a positive number")
		}
	}

	p, err := s.client.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	s.store.Add(cart.Product{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.PriceDecimal(),
		ImageURL: p.ImageURL,
	}, qty)

	fmt.Printf("added %d x %s\n", qty, p.Name)
	return nil
}

func (s *session) remove(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: remove <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.New("product id must be a number")
	}
	s.store.Remove(id)
	fmt.Println("removed")
	return nil
}

func (s *session) setQuantity(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: qty <id> <n>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.New("product id must be a number")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.New("quantity must be a number")
	}
	s.store.SetQuantity(id, n)
	return nil
}

func (s *session) printCart() {
	snap := s.store.Snapshot()
	if len(snap.Items) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for _, item := range snap.Items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Printf("%4d  %-24s %3d x %8s = %8s\n",
			item.ProductID, item.Name, item.Quantity, item.UnitPrice.StringFixed(2), line.StringFixed(2))
	}
	fmt.Printf("      %-24s %d items, subtotal %s\n", "", snap.Count, snap.Subtotal.StringFixed(2))
}

func (s *session) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: register <username> <email>")
	}
	password, err := promptPassword()
	if err != nil {
		return err
	}

	u, err := s.client.Register(ctx, apiclient.RegisterInput{
		Username: args[0],
		Email:    args[1],
		Password: password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered and signed in as %s\n", u.Username)
	return nil
}

func (s *session) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: login <email>")
	}
	password, err := promptPassword()
	if err != nil {
		return err
	}

	u, err := s.client.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s\n", u.Username)
	return nil
}

func (s *session) me(ctx context.Context) error {
	u, err := s.client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> role=%s\n", u.Username, u.Email, u.Role)
	return nil
}

func (s *session) orders(ctx context.Context) error {
	orders, err := s.client.MyOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("no orders yet")
		return nil
	}
	for _, o := range orders {
		fmt.Printf("#%-5d %-12s %8.2f  %s\n", o.ID, o.Status, o.TotalAmount, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (s *session) checkout(ctx context.Context) error {
	confirmed, err := s.flow.Checkout(ctx)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			return errors.New("cart is empty")
		case errors.Is(err, checkout.ErrAuthRequired):
			return errors.New("sign in first (login <email>)")
		}
		return err
	}
	fmt.Printf("order #%d placed, status %s, total %s\n",
		confirmed.ID, confirmed.Status, confirmed.TotalAmount.StringFixed(2))
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	if len(raw) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(raw), nil
}
