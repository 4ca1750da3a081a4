package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `{
  "bundles": [
    {"id": "b1", "enabled": true, "placements": ["product"], "priority": 5, "label": "COMBO",
     "products": [{"id": "P1", "variantId": "V1"}, {"id": "P2", "variantId": "V2"}]}
  ],
  "smartOffers": [
    {"id": "o1", "status": "active", "placements": ["minicart"], "minTotal": 50000, "priority": 3,
     "offerProduct": {"id": "P3", "variantId": "V3"}}
  ],
  "shippingBar": {"enabled": true, "threshold": 80000, "msgProgress": "Te faltan {remaining}",
    "msgSuccess": "Envío gratis", "placements": ["minicart"]}
}`

const testPage = `<html><body>
<script src="/booster.js" data-store-id="42"></script>
<div id="main"><form id="product_form"><button>Comprar</button></form></div>
<div class="js-cart-panel"></div>
</body></html>`

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if data != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}
