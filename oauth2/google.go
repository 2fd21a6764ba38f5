package oauth2

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/panyam/secretgate"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the root of the Google API. Can be overridden for testing.
	UserInfoURL string
}

func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string, handleUser HandleUserFunc, handleFailure HandleFailureFunc) *GoogleOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL"))
	}

	out := &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2(secretgate.ProviderGoogle, clientId, clientSecret, callbackUrl, google.Endpoint, []string{
			googleoauth2.UserinfoProfileScope,
		}),
		UserInfoURL: "https://www.googleapis.com/",
	}
	out.HandleUser = handleUser
	out.HandleFailure = handleFailure
	out.fetchSubject = out.fetchSubjectID
	return out
}

// fetchSubjectID reads the stable Google account id from the userinfo endpoint
func (g *GoogleOAuth2) fetchSubjectID(ctx context.Context, token *oauth2.Token) (string, error) {
	client := g.oauthConfig.Client(ctx, token)
	svc, err := googleoauth2.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(g.UserInfoURL))
	if err != nil {
		return "", fmt.Errorf("failed creating google oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed getting user info from google: %w", err)
	}
	return info.Id, nil
}
