package tests

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type testConfig struct {
	Endpoint string `yaml:"endpoint"`
	Index    string `yaml:"index"`
	Query    string `yaml:"query"`
}

var cfg = loadConfig()

var client = &http.Client{Timeout: 30 * time.Second}

func loadConfig() testConfig {

	data, err := os.ReadFile("service_test.yml")
	if err != nil {
		log.Fatal(err)
	}

	var c testConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		log.Fatal(err)
	}

	// allow environment variables to override the configuration file
	if len(os.Getenv("TC_ENDPOINT")) != 0 {
		c.Endpoint = os.Getenv("TC_ENDPOINT")
	}

	if len(os.Getenv("TC_INDEX")) != 0 {
		c.Index = os.Getenv("TC_INDEX")
	}

	log.Printf("endpoint [%s]  index [%s]\n", c.Endpoint, c.Index)

	return c
}

func getJSON(url string, out interface{}) (int, error) {

	res, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, err
		}
	}

	return res.StatusCode, nil
}

func searchURL(index string, query string) string {
	return fmt.Sprintf("%s/api/search/%s?q=%s", cfg.Endpoint, index, query)
}

//
// end of file
//
