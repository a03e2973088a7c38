package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	cartsvc "github.com/vladislavdragonenkov/checkout/internal/service/cart"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

// RouterConfig собирает зависимости HTTP API.
type RouterConfig struct {
	Carts       cartsvc.Service
	Checkout    checkoutsvc.Service
	Idempotency domain.IdempotencyRepository
	JWTSecret   []byte
	Logger      *log.Entry
}

// NewRouter собирает маршрутизатор API: пользовательские маршруты за JWT,
// админские — за дополнительной проверкой роли, размещение заказа — за
// идемпотентным middleware.
func NewRouter(cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}

	cartHandlers := NewCartHandlers(cfg.Carts, logger.WithField("handlers", "cart"))
	orderHandlers := NewOrderHandlers(cfg.Checkout, logger.WithField("handlers", "orders"))

	root := mux.NewRouter()

	api := root.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(cfg.JWTSecret))

	api.HandleFunc("/cart", cartHandlers.Get).Methods(http.MethodGet)
	api.HandleFunc("/cart/items", cartHandlers.AddItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{productID}", cartHandlers.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{productID}", cartHandlers.RemoveItem).Methods(http.MethodDelete)

	placeOrder := http.Handler(http.HandlerFunc(orderHandlers.Place))
	if cfg.Idempotency != nil {
		placeOrder = IdempotencyMiddleware(cfg.Idempotency, logger.WithField("handlers", "idempotency"))(placeOrder)
	}
	api.Handle("/orders", placeOrder).Methods(http.MethodPost)

	api.HandleFunc("/orders/my-orders", orderHandlers.ListMy).Methods(http.MethodGet)
	api.HandleFunc("/orders/{orderID}", orderHandlers.Get).Methods(http.MethodGet)
	api.HandleFunc("/orders/{orderID}/events", orderHandlers.Events).Methods(http.MethodGet)
	api.HandleFunc("/orders/{orderID}/cancel", orderHandlers.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/orders/{orderID}/pay", orderHandlers.Pay).Methods(http.MethodPost)
	api.HandleFunc("/orders/{orderID}/refund", orderHandlers.RequestRefund).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(AdminMiddleware)
	admin.HandleFunc("/orders/{orderID}/status", orderHandlers.UpdateStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/refunds/{orderID}/resolve", orderHandlers.ResolveRefund).Methods(http.MethodPost)

	return root
}
