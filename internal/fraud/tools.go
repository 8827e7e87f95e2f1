package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// Tool names as exposed to the dialogue LLM.
const (
	ToolLoadFraudCase         = "load_fraud_case"
	ToolVerifyCustomer        = "verify_customer"
	ToolGetTransactionDetails = "get_transaction_details"
	ToolConfirmTransaction    = "confirm_transaction"
)

// ToolDefinitions returns the function-tool schema advertised to the
// model on every request.
func ToolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolLoadFraudCase,
				Description: "Load the fraud case for the given customer name.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"username": {"type": "string", "description": "The customer's full name"}
					},
					"required": ["username"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolVerifyCustomer,
				Description: "Verify the customer's identity using their security question answer.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"answer": {"type": "string", "description": "The customer's answer to the security question"}
					},
					"required": ["answer"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolGetTransactionDetails,
				Description: "Get the suspicious transaction details to read to the customer.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {}
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolConfirmTransaction,
				Description: "Record whether the customer confirms or denies making the transaction.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"customer_made_transaction": {"type": "boolean", "description": "True if the customer confirms they made the transaction, false if they deny it"}
					},
					"required": ["customer_made_transaction"]
				}`),
			},
		},
	}
}

// Run dispatches one tool invocation against the session. Unknown
// tools and malformed arguments produce soft error strings so the
// dialogue can recover mid-call instead of dropping it.
func (s *CallSession) Run(_ context.Context, name string, arguments string) string {
	switch name {
	case ToolLoadFraudCase:
		var args struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return badArgs(s.callID, name, err)
		}
		return s.LoadCase(args.Username)
	case ToolVerifyCustomer:
		var args struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return badArgs(s.callID, name, err)
		}
		return s.VerifyCustomer(args.Answer)
	case ToolGetTransactionDetails:
		return s.GetTransactionDetails()
	case ToolConfirmTransaction:
		var args struct {
			CustomerMadeTransaction bool `json:"customer_made_transaction"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return badArgs(s.callID, name, err)
		}
		return s.ConfirmTransaction(args.CustomerMadeTransaction)
	default:
		log.Printf("[%s] unknown tool requested: %s", s.callID, name)
		return fmt.Sprintf("Error: unknown tool %q.", name)
	}
}

func badArgs(callID, name string, err error) string {
	log.Printf("[%s] bad arguments for %s: %v", callID, name, err)
	return fmt.Sprintf("Error: invalid arguments for %s.", name)
}
