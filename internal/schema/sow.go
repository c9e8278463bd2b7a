package schema

// SOWData is the structured record extracted from a Statement of Work
// document. Optional fields are pointers so "absent" and "zero" stay
// distinguishable for the downstream rule engine.
type SOWData struct {
	ClientName        string    `json:"client_name"`
	ContractValue     *float64  `json:"contract_value"`
	StartDate         *string   `json:"start_date"`
	EndDate           *string   `json:"end_date"`
	PONumber          *string   `json:"po_number"`
	IR35Status        *string   `json:"ir35_status,omitempty"`
	DayRates          []DayRate `json:"day_rates"`
	SignaturesPresent bool      `json:"signatures_present"`
}

type DayRate struct {
	Role     string  `json:"role"`
	Rate     float64 `json:"rate"`
	Currency string  `json:"currency"`
}

// DateLayout is the wire format for contract dates.
const DateLayout = "2006-01-02"

// sowSchemaV1 is the closed-world schema for extracted SOW data.
// additionalProperties:false rejects any field the LLM invents.
const sowSchemaV1 = `{
  "type": "object",
  "required": ["client_name"],
  "additionalProperties": false,
  "properties": {
    "client_name": {
      "type": "string",
      "minLength": 1,
      "maxLength": 200
    },
    "contract_value": {
      "type": ["number", "null"],
      "minimum": 0,
      "maximum": 100000000
    },
    "start_date": {
      "type": ["string", "null"],
      "pattern": "^\\d{4}-\\d{2}-\\d{2}$"
    },
    "end_date": {
      "type": ["string", "null"],
      "pattern": "^\\d{4}-\\d{2}-\\d{2}$"
    },
    "po_number": {
      "type": ["string", "null"],
      "maxLength": 100
    },
    "ir35_status": {
      "type": ["string", "null"],
      "enum": ["Inside", "Outside", "Not Specified", null]
    },
    "day_rates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role", "rate", "currency"],
        "additionalProperties": false,
        "properties": {
          "role": {
            "type": "string",
            "minLength": 1,
            "maxLength": 100
          },
          "rate": {
            "type": "number",
            "minimum": 0,
            "maximum": 5000
          },
          "currency": {
            "type": "string",
            "enum": ["GBP", "USD", "EUR"]
          }
        }
      }
    },
    "signatures_present": {
      "type": "boolean"
    }
  }
}`

// versions maps a schema specification version to its document. New schema
// revisions get a new entry; stages select one via SCHEMA_VERSION.
var versions = map[string]string{
	"v1": sowSchemaV1,
}

const DefaultVersion = "v1"
