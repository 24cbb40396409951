package scanning

import (
	"fmt"
	"strconv"
	"strings"
)

// classificationPrompt is the shared prompt used by all LLM backends for classifying bill amounts
const classificationPrompt = `You are analyzing the text of a medical bill or receipt. Classify each listed amount by the role it plays on the bill, using the words around it.

Categories:
- total_bill: the total amount of the bill ("Total", "Grand Total", "Net Payable")
- paid: an amount already paid ("Paid", "Payment Received")
- due: an amount still owed ("Due", "Balance", "Outstanding")
- discount: a discount, given as an amount ("Discount", "Off")
- consultation_fee: a doctor consultation or visit fee
- medicine_cost: the cost of medicines or pharmacy items
- test_cost: the cost of lab tests, scans or procedures
- other: anything else (taxes, invoice numbers, dates, subtotals)

Text:
%s

Amounts found: [%s]

Return ONLY valid JSON in this exact format:
{
  "classifications": [
    {"value": 0.00, "category": "category_name", "confidence": 0.00}
  ]
}

Important:
- Return exactly one entry for every listed amount, using the value exactly as listed
- The category must be one of the category names above
- The confidence must be a number between 0 and 1
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// buildPrompt renders the classification prompt for req
func buildPrompt(req ClassifyRequest) string {
	values := make([]string, len(req.Amounts))
	for i, a := range req.Amounts {
		values[i] = strconv.FormatFloat(a, 'f', -1, 64)
	}
	return fmt.Sprintf(classificationPrompt, req.Text, strings.Join(values, ", "))
}
