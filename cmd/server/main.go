// Package main provides the entry point for the post publisher. It serves the
// /api/x HTTP API by default and offers -login, -post and -logout for using a
// client-held session from the terminal.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brightmind/post-publisher/internal/buildinfo"
	"github.com/brightmind/post-publisher/internal/cmd"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/logging"
	"github.com/brightmind/post-publisher/internal/util"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	fmt.Println(buildinfo.String())

	var login bool
	var logout bool
	var noBrowser bool
	var postText string
	var imageURL string
	var imageFile string
	var configPath string

	flag.BoolVar(&login, "login", false, "Sign in to X using OAuth 2.0 with PKCE")
	flag.BoolVar(&logout, "logout", false, "Revoke the stored X session and delete it")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.StringVar(&postText, "post", "", "Publish a post with the stored session")
	flag.StringVar(&imageURL, "image-url", "", "Attach the image at this URL to -post")
	flag.StringVar(&imageFile, "image-file", "", "Attach this image file to -post")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	var cfg *config.Config
	configFilePath := configPath
	if configFilePath != "" {
		cfg, err = config.LoadConfig(configFilePath)
	} else {
		configFilePath = filepath.Join(wd, "config.yaml")
		cfg, err = config.LoadConfigOptional(configFilePath, true)
	}
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	log.Info(buildinfo.String())

	util.SetLogLevel(cfg)

	if resolvedAuthDir, errResolveAuthDir := util.ResolveAuthDir(cfg.AuthDir); errResolveAuthDir != nil {
		log.Errorf("failed to resolve auth directory: %v", errResolveAuthDir)
		return
	} else {
		cfg.AuthDir = resolvedAuthDir
	}

	switch {
	case login:
		cmd.DoLogin(cfg, &cmd.LoginOptions{NoBrowser: noBrowser})
	case logout:
		cmd.DoLogout(cfg)
	case postText != "" || imageURL != "" || imageFile != "":
		cmd.DoPost(cfg, &cmd.PostOptions{Text: postText, ImageURL: imageURL, ImageFile: imageFile})
	default:
		if errValidate := cfg.Validate(); errValidate != nil {
			log.Warnf("%v; OAuth endpoints will answer with a configuration error", errValidate)
		}
		cmd.StartService(cfg, configFilePath)
	}
}
