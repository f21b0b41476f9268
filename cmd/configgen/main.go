package main

import (
	"flag"
	"log"

	"github.com/danmuck/mupipe/internal/config"
)

func main() {
	kind := flag.String("kind", "gateway", "config kind: gateway|muctl")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing gateway config file")
	input := flag.String("input", "cmd/mugate/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "gateway" {
			log.Fatalf("validation supports kind gateway only, got %s", *kind)
		}
		if _, err := config.LoadGatewayConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated gateway config at %s", *input)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "gateway":
			target = "cmd/mugate/config.toml"
		case "muctl":
			target = "cmd/muctl/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
