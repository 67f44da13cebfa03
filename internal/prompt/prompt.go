// Package prompt renders the classifier, report and chat prompts.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/IshaanNene/ShopSense/internal/types"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"json": toJSON,
}).ParseFS(templateFS, "templates/*.tmpl"))

type example struct {
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
}

type classifierDoc struct {
	Task            string             `json:"task"`
	Description     string             `json:"description"`
	FewShotExamples []example          `json:"few_shot_examples"`
	Input           *types.ProductInfo `json:"input"`
	Instruction     string             `json:"instruction"`
}

const classifierDescription = "You are a product classification assistant. Based on the given product information, " +
	"classify the product into one of the following categories:\n" +
	"- Electronics\n" +
	"- Clothes\n" +
	"- Food\n\n" +
	"Also provide 5 relevant product names.\n" +
	"Respond only in JSON with the format:\n" +
	"{\n  \"product_classifier\": \"<Category>\",\n  \"relevant_items\": [\"item1\", \"item2\", ...]\n}"

// Classifier renders the classification prompt as an indented JSON
// document with one worked example.
func Classifier(info *types.ProductInfo) (string, error) {
	doc := classifierDoc{
		Task:        "Product Category Classification",
		Description: classifierDescription,
		FewShotExamples: []example{{
			Input: map[string]any{
				"title":           "Sony WH-1000XM4 Wireless Headphones",
				"price":           "299.99",
				"rating":          "4.8 out of 5 stars",
				"about_this_item": []string{"Industry-leading noise cancellation", "30 hours battery"},
			},
			Output: map[string]any{
				"product_classifier": "Electronics",
				"relevant_items": []string{
					"Bose 700 Headphones",
					"Jabra Elite 85h",
					"Sennheiser Momentum 4",
					"Apple AirPods Max",
					"Beats Studio3 Wireless",
				},
			},
		}},
		Input:       info,
		Instruction: "Classify and return 5 relevant items. Only return JSON.",
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render classifier prompt: %w", err)
	}
	return string(raw), nil
}

// Report renders the report prompt for a combined record.
func Report(rec *types.CombinedRecord) (string, error) {
	return render("report.tmpl", map[string]any{
		"Record":   rec,
		"Category": strings.ToLower(rec.ClassificationResult.ProductClassifier),
	})
}

// Chat renders the chat prompt from the record, the history block and
// the user's question.
func Chat(rec *types.CombinedRecord, history, question string) (string, error) {
	return render("chat.tmpl", map[string]any{
		"Record":   rec,
		"History":  history,
		"Question": question,
	})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func toJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
