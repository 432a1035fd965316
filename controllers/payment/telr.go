package paymentControllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	cartControllers "github.com/cartizen/storefront-api/controllers/cart"
	orderControllers "github.com/cartizen/storefront-api/controllers/order"
)

// TelrPaymentResponse represents Telr response
type TelrPaymentResponse struct {
	Order struct {
		Ref string `json:"ref"`
		URL string `json:"url"`
	} `json:"order"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// getTelrConfig picks production endpoint, test mode if needed
func getTelrConfig() (storeID int, authKey, apiURL string, testMode int, err error) {
	storeID, _ = strconv.Atoi(os.Getenv("TELR_STORE_ID_PROD"))
	authKey = os.Getenv("TELR_AUTH_KEY_PROD")
	apiURL = os.Getenv("TELR_API_URL_PROD")
	testMode = 0

	mode := os.Getenv("TELR_MODE")
	if mode == "sandbox" || mode == "dev" {
		testMode = 1 // use test mode even on live endpoint
	}

	if storeID == 0 || authKey == "" || apiURL == "" {
		return 0, "", "", 0, fmt.Errorf("telr configuration missing")
	}
	return storeID, authKey, apiURL, testMode, nil
}

// checkoutRef encodes the cart id into the gateway's cartid field together
// with a nonce, so the webhook can be traced back to the cart it paid for.
func checkoutRef(cartID uint) string {
	return fmt.Sprintf("cart-%d-%s", cartID, uuid.NewString())
}

// cartIDFromRef parses the cart id back out of the reference the gateway
// echoes in tran_cartid.
func cartIDFromRef(ref string) (uint, error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) < 2 || parts[0] != "cart" {
		return 0, fmt.Errorf("malformed checkout reference %q", ref)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed checkout reference %q", ref)
	}
	return uint(id), nil
}

// CreateTelrPayment sends the create request to Telr and returns the hosted
// payment URL and Telr's order reference. The amount comes exclusively from
// the server-side checkout summary.
func CreateTelrPayment(summary *cartControllers.CheckoutSummary, ref, currency, description, name, email, phone string) (string, string, error) {
	storeID, authKey, apiURL, testMode, err := getTelrConfig()
	if err != nil {
		return "", "", err
	}

	payload := map[string]interface{}{
		"method":  "create",
		"store":   storeID,
		"authkey": authKey,
		"order": map[string]interface{}{
			"cartid":      ref,
			"test":        testMode,
			"amount":      fmt.Sprintf("%.2f", summary.Total),
			"currency":    currency,
			"description": description,
		},
		"customer": map[string]interface{}{
			"name":  name,
			"email": email,
			"phone": phone,
		},
		"return": map[string]string{
			"authorised": os.Getenv("TELR_SUCCESS_URL"),
			"declined":   os.Getenv("TELR_FAILURE_URL"),
			"cancelled":  os.Getenv("TELR_CANCEL_URL"),
		},
	}

	jsonData, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", apiURL, bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to reach Telr: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("telr API error (%d): %s", resp.StatusCode, string(body))
	}

	var telrResp TelrPaymentResponse
	if err := json.Unmarshal(body, &telrResp); err != nil {
		return "", "", fmt.Errorf("failed to parse Telr response: %v", err)
	}

	if telrResp.Error != nil {
		return "", "", fmt.Errorf("telr error: %s", telrResp.Error.Message)
	}

	if telrResp.Order.URL == "" {
		return "", "", fmt.Errorf("telr returned empty payment URL")
	}

	return telrResp.Order.URL, telrResp.Order.Ref, nil
}

// PaymentRequestHandler starts a payment for the caller's own cart. The cart
// is re-resolved and its totals recomputed here; any amount the client might
// send is ignored.
func PaymentRequestHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := cartControllers.OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var input struct {
			Currency    string `json:"currency" binding:"required"`
			Description string `json:"description" binding:"required"`
			Name        string `json:"name" binding:"required"`
			Email       string `json:"email" binding:"required,email"`
			Phone       string `json:"phone" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}

		cart, err := cartControllers.ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		summary, err := cartControllers.PrepareCheckout(db, cart)
		if err != nil {
			if err == cartControllers.ErrEmptyCart {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare checkout"})
			return
		}

		ref := checkoutRef(summary.CartID)
		paymentURL, orderRef, err := CreateTelrPayment(
			summary, ref,
			input.Currency, input.Description,
			input.Name, input.Email, input.Phone,
		)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"payment_url":  paymentURL,
			"order_ref":    orderRef,
			"checkout_ref": ref,
			"amount":       summary.Total,
		})
	}
}

// TelrWebhookHandler turns an approved transaction into an order. Telr
// delivers at least once; MaterializeOrder dedupes on tran_ref, so a
// redelivered webhook returns the already-created order.
func TelrWebhookHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
			return
		}

		cartRef := c.PostForm("tran_cartid")
		tranRef := c.PostForm("tran_ref")
		tranStatus := c.PostForm("tran_status") // "A" = approved

		if cartRef == "" || tranRef == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing tran_cartid or tran_ref"})
			return
		}

		if tranStatus != "A" {
			c.JSON(http.StatusOK, gin.H{"message": "Payment not successful"})
			return
		}

		cartID, err := cartIDFromRef(cartRef)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		order, err := orderControllers.MaterializeOrder(db, cartID, tranRef, cartRef)
		if err != nil {
			log.Printf("failed to place order for cart %d (ref %s): %v", cartID, tranRef, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to place order", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Order placed successfully", "order_id": order.ID})
	}
}
