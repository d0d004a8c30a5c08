package gemini

import (
	"fmt"
	"sort"
	"strings"
)

// BuildPrompt renders the generation instruction for one contact row. Fields
// are emitted in sorted order so the same row always yields the same prompt.
func BuildPrompt(record map[string]string) string {
	fields := make([]string, 0, len(record))
	for k := range record {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var data strings.Builder
	for _, k := range fields {
		fmt.Fprintf(&data, "%s: %s\n", k, record[k])
	}

	var b strings.Builder
	b.WriteString("Create a personalized outreach email using the contact data below. ")
	b.WriteString("The output must be plain text only, formatted exactly as follows:\n\n")
	b.WriteString("[email] === [name] === [personalized email message]\n\n")
	b.WriteString("Contact data:\n")
	b.WriteString(data.String())
	b.WriteString("\nGuidelines:\n")
	b.WriteString("1. Use only the actual data provided.\n")
	b.WriteString("2. The message body should open with an engaging line referencing the contact's role, highlight their relevant experience, and close by asking for their availability to discuss a collaboration.\n")
	b.WriteString("3. The message must be fully completed with no placeholders or template markers (e.g., [Your Name], [Your Position]).\n")
	b.WriteString("4. Do not include a subject line, sign-offs (such as \"Regards,\" or \"Sincerely\"), or any extra characters.\n")
	b.WriteString("5. The message must begin with \"Hello\" followed by the contact's name.\n")
	b.WriteString("6. Use the \"===\" separator exactly twice, separating email address, name, and message, with no other formatting.\n\n")
	b.WriteString("Example of expected output (without the quotation marks):\n\n")
	b.WriteString("scott.ramey@halifax.ca === Scott Ramey === Hello Scott, I noticed your role as Division... [rest of the personalized message]\n")
	return b.String()
}
