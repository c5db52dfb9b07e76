package cmd

import (
	"context"
	"fmt"

	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/config"
	log "github.com/sirupsen/logrus"
)

// DoLogout revokes the stored session and deletes the token file.
func DoLogout(cfg *config.Config) {
	if err := Logout(context.Background(), cfg); err != nil {
		fmt.Printf("Logout failed: %v\n", err)
		return
	}
	fmt.Println("Signed out of X.")
}

// Logout revokes the stored access token, best effort, and removes the file.
func Logout(ctx context.Context, cfg *config.Config) error {
	tokenPath, err := TokenPath(cfg)
	if err != nil {
		return err
	}
	ts, err := xauth.LoadTokenFromFile(tokenPath)
	if err != nil {
		log.Debugf("no stored session to revoke: %v", err)
	} else {
		xauth.NewXAuth(cfg).Revoke(ctx, ts.AccessToken)
	}
	return xauth.RemoveTokenFile(tokenPath)
}
