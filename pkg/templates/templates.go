// Package templates holds the multi-language notification message catalog.
// Catalogs ship built in for every supported language and can be overridden
// or extended by YAML packs on disk.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// Key identifies one message template across all languages.
type Key string

const (
	KeyWelcome             Key = "welcome"
	KeyAcknowledge         Key = "acknowledge"
	KeyMenu                Key = "menu"
	KeyOrderConfirmation   Key = "order_confirmation"
	KeyPaymentInstructions Key = "payment_instructions"
	KeyPaymentConfirmed    Key = "payment_confirmed"
	KeyKitchenNewOrder     Key = "kitchen_new_order"
	KeyDeliveryUpdate      Key = "delivery_update"
	KeyDriverPickupTime    Key = "driver_pickup_time"
	KeyDriverReady         Key = "driver_ready"
	KeyDriverConfirmed     Key = "driver_confirmed"
	KeyInDelivery          Key = "in_delivery"
	KeyOrderDelivered      Key = "order_delivered"
	KeyKitchenDelivered    Key = "kitchen_delivered"
	KeyOrderComplete       Key = "order_complete"
)

// Catalog maps template keys to message bodies for one language.
type Catalog map[Key]string

// pack is the on-disk YAML shape: one file per language.
type pack struct {
	Language  string            `yaml:"language"`
	Templates map[string]string `yaml:"templates"`
}

// Registry resolves templates by language with default-language fallback.
type Registry struct {
	mu          sync.RWMutex
	catalogs    map[domain.Language]Catalog
	defaultLang domain.Language
}

// NewRegistry builds a registry preloaded with the built-in catalogs.
func NewRegistry(defaultLang domain.Language) *Registry {
	if !defaultLang.Supported() {
		defaultLang = domain.LangEnglish
	}
	return &Registry{
		catalogs: map[domain.Language]Catalog{
			domain.LangEnglish:    builtinEnglish(),
			domain.LangSpanish:    builtinSpanish(),
			domain.LangPortuguese: builtinPortuguese(),
		},
		defaultLang: defaultLang,
	}
}

// DefaultLanguage returns the registry's fallback language.
func (r *Registry) DefaultLanguage() domain.Language { return r.defaultLang }

// LoadDir merges YAML template packs from a directory over the built-ins.
// Missing directories are skipped silently so fresh deployments work with
// built-ins only.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading template dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		if err := r.loadFile(filepath.Join(dir, name)); err != nil {
			logger.WarnCF("templates", "Skipping template pack", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (r *Registry) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var p pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	lang := domain.Language(p.Language)
	if !lang.Supported() {
		return fmt.Errorf("unsupported language %q", p.Language)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cat, ok := r.catalogs[lang]
	if !ok {
		cat = make(Catalog)
		r.catalogs[lang] = cat
	}
	for k, v := range p.Templates {
		cat[Key(k)] = v
	}

	logger.InfoCF("templates", "Loaded template pack", map[string]interface{}{
		"file":     filepath.Base(path),
		"language": lang.String(),
		"count":    len(p.Templates),
	})
	return nil
}

// Render resolves a template for the language and substitutes {placeholder}
// variables. An unsupported or incomplete language falls back to the default
// language; a key missing there too is an error.
func (r *Registry) Render(lang domain.Language, key Key, vars map[string]string) (string, error) {
	r.mu.RLock()
	body, ok := r.lookup(lang, key)
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found for language %q", key, lang)
	}
	return substitute(body, vars), nil
}

func (r *Registry) lookup(lang domain.Language, key Key) (string, bool) {
	if cat, ok := r.catalogs[lang]; ok {
		if body, ok := cat[key]; ok {
			return body, true
		}
	}
	if lang == r.defaultLang {
		return "", false
	}
	cat, ok := r.catalogs[r.defaultLang]
	if !ok {
		return "", false
	}
	body, ok := cat[key]
	return body, ok
}

func substitute(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// ---------------------------------------------------------------------------
// Built-in catalogs
// ---------------------------------------------------------------------------

func builtinEnglish() Catalog {
	return Catalog{
		KeyWelcome:             "Welcome to {restaurant}! Reply 'menu' to see today's dishes.",
		KeyAcknowledge:         "We received your message: \"{content}\".",
		KeyMenu:                "Here is today's menu from {restaurant}. Reply 'confirm' once you have chosen.",
		KeyOrderConfirmation:   "Your order {order_id} is noted. Reply 'pay' to continue to payment.",
		KeyPaymentInstructions: "Order {order_id}: please complete your payment and reply 'paid'.",
		KeyPaymentConfirmed:    "Payment received for order {order_id}. The kitchen is on it!",
		KeyKitchenNewOrder:     "New paid order {order_id}. Please confirm reception.",
		KeyDeliveryUpdate:      "Update on order {order_id}: the kitchen estimates {prep_time} until it is ready.",
		KeyDriverPickupTime:    "Order {order_id} will be ready for pickup in {prep_time}.",
		KeyDriverReady:         "Order {order_id} is ready for pickup at {restaurant}.",
		KeyDriverConfirmed:     "A driver has been assigned to your order {order_id}.",
		KeyInDelivery:          "Your order {order_id} is on the way!",
		KeyOrderDelivered:      "Your order {order_id} has been delivered. Thank you for choosing {restaurant}!",
		KeyKitchenDelivered:    "Order {order_id} was delivered to the customer.",
		KeyOrderComplete:       "Order {order_id} is complete. We hope to see you again at {restaurant}!",
	}
}

func builtinSpanish() Catalog {
	return Catalog{
		KeyWelcome:             "¡Bienvenido a {restaurant}! Escribe 'menú' para ver los platos de hoy.",
		KeyAcknowledge:         "Recibimos tu mensaje: \"{content}\".",
		KeyMenu:                "Este es el menú de hoy de {restaurant}. Escribe 'confirmo' cuando hayas elegido.",
		KeyOrderConfirmation:   "Tu pedido {order_id} quedó registrado. Escribe 'pagar' para continuar con el pago.",
		KeyPaymentInstructions: "Pedido {order_id}: por favor completa tu pago y escribe 'pagado'.",
		KeyPaymentConfirmed:    "Pago recibido para el pedido {order_id}. ¡La cocina ya está en ello!",
		KeyKitchenNewOrder:     "Nuevo pedido pagado {order_id}. Por favor confirma la recepción.",
		KeyDeliveryUpdate:      "Actualización del pedido {order_id}: la cocina estima {prep_time} para tenerlo listo.",
		KeyDriverPickupTime:    "El pedido {order_id} estará listo para recoger en {prep_time}.",
		KeyDriverReady:         "El pedido {order_id} está listo para recoger en {restaurant}.",
		KeyDriverConfirmed:     "Un repartidor fue asignado a tu pedido {order_id}.",
		KeyInDelivery:          "¡Tu pedido {order_id} va en camino!",
		KeyOrderDelivered:      "Tu pedido {order_id} fue entregado. ¡Gracias por elegir {restaurant}!",
		KeyKitchenDelivered:    "El pedido {order_id} fue entregado al cliente.",
		KeyOrderComplete:       "El pedido {order_id} está completo. ¡Esperamos verte de nuevo en {restaurant}!",
	}
}

func builtinPortuguese() Catalog {
	return Catalog{
		KeyWelcome:             "Bem-vindo ao {restaurant}! Responda 'menu' para ver os pratos de hoje.",
		KeyAcknowledge:         "Recebemos sua mensagem: \"{content}\".",
		KeyMenu:                "Este é o cardápio de hoje do {restaurant}. Responda 'confirmo' quando escolher.",
		KeyOrderConfirmation:   "Seu pedido {order_id} foi registrado. Responda 'pagar' para seguir ao pagamento.",
		KeyPaymentInstructions: "Pedido {order_id}: por favor conclua o pagamento e responda 'pago'.",
		KeyPaymentConfirmed:    "Pagamento recebido para o pedido {order_id}. A cozinha já está trabalhando!",
		KeyKitchenNewOrder:     "Novo pedido pago {order_id}. Por favor confirme o recebimento.",
		KeyDeliveryUpdate:      "Atualização do pedido {order_id}: a cozinha estima {prep_time} até ficar pronto.",
		KeyDriverPickupTime:    "O pedido {order_id} estará pronto para retirada em {prep_time}.",
		KeyDriverReady:         "O pedido {order_id} está pronto para retirada no {restaurant}.",
		KeyDriverConfirmed:     "Um entregador foi designado para o seu pedido {order_id}.",
		KeyInDelivery:          "Seu pedido {order_id} está a caminho!",
		KeyOrderDelivered:      "Seu pedido {order_id} foi entregue. Obrigado por escolher o {restaurant}!",
		KeyKitchenDelivered:    "O pedido {order_id} foi entregue ao cliente.",
		KeyOrderComplete:       "O pedido {order_id} está concluído. Esperamos vê-lo novamente no {restaurant}!",
	}
}
