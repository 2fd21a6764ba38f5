package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/panyam/secretgate"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

type FacebookOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the Graph API "me" endpoint. Can be overridden for testing.
	UserInfoURL string
}

func NewFacebookOAuth2(clientId, clientSecret, callbackUrl string, handleUser HandleUserFunc, handleFailure HandleFailureFunc) *FacebookOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CALLBACK_URL"))
	}

	out := &FacebookOAuth2{
		BaseOAuth2:  NewBaseOAuth2(secretgate.ProviderFacebook, clientId, clientSecret, callbackUrl, facebook.Endpoint, []string{"public_profile"}),
		UserInfoURL: "https://graph.facebook.com/me",
	}
	out.HandleUser = handleUser
	out.HandleFailure = handleFailure
	out.fetchSubject = out.fetchSubjectID
	return out
}

func (f *FacebookOAuth2) fetchSubjectID(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.UserInfoURL+"?fields=id,name", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	response, err := f.getHTTPClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed getting user info from facebook: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("facebook user info returned %s", response.Status)
	}

	var me struct {
		Id   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(response.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("failed to parse user info: %w", err)
	}
	return me.Id, nil
}
