package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	cartControllers "github.com/cartizen/storefront-api/controllers/cart"
	"github.com/cartizen/storefront-api/models"
)

// ---------------------------------------------
// GOOGLE USER LOGIN
// ---------------------------------------------
func GoogleUserLoginHandler(w http.ResponseWriter, r *http.Request, db *gorm.DB) {
	var req struct {
		IDToken string `json:"idToken"`
		GuestID string `json:"guest_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	ctx := context.Background()

	// Verify Firebase token
	token, err := firebaseAuth.VerifyIDTokenAndCheckRevoked(ctx, req.IDToken)
	if err != nil {
		http.Error(w, "Invalid Firebase ID token", http.StatusUnauthorized)
		return
	}

	if token.Audience != projectID {
		http.Error(w, "Invalid token audience", http.StatusUnauthorized)
		return
	}

	// Extract user info
	email := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	picture, _ := token.Claims["picture"].(string)
	firebaseUserID := token.UID

	// ---------------------------------------------
	// 1. Fetch or Create user
	// ---------------------------------------------
	var user models.User
	err = db.Where("id = ?", firebaseUserID).First(&user).Error

	if err == gorm.ErrRecordNotFound {
		// The cart itself is created lazily on the first mutation.
		user = models.User{
			ID:       firebaseUserID,
			Email:    email,
			Name:     name,
			Picture:  picture,
			Provider: "google",
		}

		if err := db.Create(&user).Error; err != nil {
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
			return
		}

	} else if err == nil {
		// User already exists → Update profile
		db.Model(&user).Updates(models.User{
			Name:    name,
			Picture: picture,
		})
	} else {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	// ---------------------------------------------
	// 2. Merge anonymous cart into the user's cart
	// ---------------------------------------------
	mergeStatus := "no-guest-cart"

	if req.GuestID != "" {
		_, mergeErr := cartControllers.MergeCarts(db, req.GuestID, user.ID)
		switch mergeErr {
		case nil:
			mergeStatus = "merged-success"
		case cartControllers.ErrCartNotFound:
			mergeStatus = "no-guest-cart"
		default:
			mergeStatus = "merge-failed"
		}
	}

	// ---------------------------------------------
	// 3. Create auth response
	// ---------------------------------------------
	resp := map[string]interface{}{
		"message":      "Login successful",
		"merge_status": mergeStatus,
		"user":         user,
		"firebase_id":  firebaseUserID,
		"token":        issueJWT(email, "user", firebaseUserID, name, picture),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// issueJWT generates a JWT token for a user
func issueJWT(email, role, userID, name, picture string) string {
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"role":    role,
		"name":    name,
		"picture": picture,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		return ""
	}

	return signedToken
}
