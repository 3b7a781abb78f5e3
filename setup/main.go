package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
)

// generates a setup_env.sh script exporting the portal's configuration
// env vars from a directory of json config files.  each file becomes one
// numbered PORTAL_SEARCH_WS_JSON_* var; the service loads them in order.
func main() {
	type cfgData struct {
		File   string
		EnvVar string
	}

	var cfgBase string
	var portalName string
	var searchHost string
	var port string
	flag.StringVar(&cfgBase, "dir", "", "local directory containing portal config json files")
	flag.StringVar(&portalName, "portal", "default", "portal name")
	flag.StringVar(&searchHost, "search", "https://search.api.globus.org", "search service host")
	flag.StringVar(&port, "port", "8080", "port to run the portal on")
	flag.Parse()

	if cfgBase == "" {
		log.Fatal("dir is required")
	}

	log.Printf("Generate portal config for %s from %s", portalName, cfgBase)
	cfgFiles := []cfgData{
		{File: "common/service.json", EnvVar: "PORTAL_SEARCH_WS_JSON_01"},
		{File: "common/search.json", EnvVar: "PORTAL_SEARCH_WS_JSON_02"},
		{File: "common/auth.json", EnvVar: "PORTAL_SEARCH_WS_JSON_03"},
		{File: "common/transfer.json", EnvVar: "PORTAL_SEARCH_WS_JSON_04"},
		{File: "common/preview.json", EnvVar: "PORTAL_SEARCH_WS_JSON_05"},
		{File: fmt.Sprintf("portals/%s.json", portalName), EnvVar: "PORTAL_SEARCH_WS_JSON_99"},
	}

	out := make([]string, 0)
	for _, cf := range cfgFiles {
		tgtFile := path.Join(cfgBase, cf.File)
		jsonBytes, err := os.ReadFile(tgtFile)
		if err != nil {
			log.Fatal(err.Error())
		}

		if cf.EnvVar == "PORTAL_SEARCH_WS_JSON_01" {
			// this is the service config where the port is set to "8080" override
			updated := strings.Replace(string(jsonBytes), "8080", port, 1)
			jsonBytes = []byte(updated)
		}

		var compacted bytes.Buffer
		if err := json.Compact(&compacted, jsonBytes); err != nil {
			log.Fatal(err.Error())
		}

		out = append(out, fmt.Sprintf("export %s='%s'", cf.EnvVar, compacted.String()))
	}

	outF, err := os.Create("setup_env.sh")
	if err != nil {
		log.Fatal(err.Error())
	}
	outF.WriteString("#!/bin/bash\n\n")
	outF.WriteString(fmt.Sprintf("export PORTAL_SEARCH_WS_SEARCH_HOST=%s\n", searchHost))
	outF.WriteString(strings.Join(out, "\n"))
	outF.WriteString("\n")
	outF.Close()
	os.Chmod("setup_env.sh", 0755)
}
