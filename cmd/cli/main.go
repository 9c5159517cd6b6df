package main

import (
	"context"
	"log"

	"github.com/abhidhakal/cipher-drop/internal/client/cli"
	"github.com/abhidhakal/cipher-drop/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
