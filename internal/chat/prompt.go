package chat

import "fmt"

const (
	documentPrompt = "Use the following document context to answer:\n\n%s\n\nUser Question: %s"
	ragPrompt      = "You are an expert assistant. Use ONLY the following context to answer the question below. " +
		"Do NOT make assumptions beyond the given information. Context:\n\n%s\n\nQuestion: %s"
)

// withDocument inlines retrieved document context into a plain chat question.
func withDocument(context, question string) string {
	if context == "" {
		return question
	}
	return fmt.Sprintf(documentPrompt, context, question)
}

// ragQuestion builds the grounded prompt of the retrieval endpoint.
func ragQuestion(context, question string) string {
	return fmt.Sprintf(ragPrompt, context, question)
}
