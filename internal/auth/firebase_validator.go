package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseTokenValidator validates Firebase ID tokens. It is the alternative
// validator for deployments that use Firebase as the auth backend.
type FirebaseTokenValidator struct {
	authClient *fbauth.Client
}

func NewFirebaseTokenValidator(ctx context.Context, credJSON string) (*FirebaseTokenValidator, error) {
	opt := option.WithCredentialsJSON([]byte(credJSON))
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %v", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase Auth client: %w", err)
	}

	return &FirebaseTokenValidator{
		authClient: authClient,
	}, nil
}

// ExtractUserInfo verifies the Firebase ID token and returns the identity.
func (f *FirebaseTokenValidator) ExtractUserInfo(tokenString string) (UserInfo, error) {
	token, err := f.authClient.VerifyIDToken(context.Background(), tokenString)
	if err != nil {
		return UserInfo{}, err
	}

	info := UserInfo{UserID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		info.Email = email
	}

	if info.UserID == "" {
		return UserInfo{}, fmt.Errorf("no user ID found in Firebase token")
	}

	return info, nil
}
