package webapp

import (
	"encoding/json"
	"fmt"
)

// ConfigScript renders /config.js, which hands the API location and the
// form defaults to the browser as window.pagepackConfig
func ConfigScript(apiURL string, defaults FormDefaults) string {
	payload, _ := json.Marshal(struct {
		APIURL string `json:"apiURL"`
		FormDefaults
	}{apiURL, defaults})
	return fmt.Sprintf("// pagepack Frontend Configuration\nwindow.%s = %s;\n", configGlobal, payload)
}
