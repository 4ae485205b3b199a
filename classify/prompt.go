package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/taskjournal/taxonomy"
)

// whoExamples anchor the person-extraction rule.
var whoExamples = []struct{ entry, who string }{
	{"Call John about the party", "John"},
	{"Meet Sarah Smith for coffee", "Sarah Smith"},
	{"Mom needs help with her computer", ""},
	{"Ask my boss about the offsite", ""},
	{"Pick up groceries", ""},
	{"Review proposal with Mike from marketing", "Mike"},
}

// systemPrompt renders the instructions sent ahead of every entry. now is the
// reference instant for relative dates; defaultTime is HH:MM.
func systemPrompt(now time.Time, defaultTime string) string {
	var b strings.Builder

	b.WriteString("You analyze personal journal entries and extract task information.\n\n")
	b.WriteString("Return a single JSON object with exactly these fields: name, type, category, subcategory, who, due_date.\n\n")

	b.WriteString("Fields:\n")
	b.WriteString("- name: a brief, clear title for the task.\n")
	fmt.Fprintf(&b, "- type: exactly one of %s.\n", quoteAll(taxonomy.Labels(taxonomy.KindType)))
	fmt.Fprintf(&b, "- category: exactly one of %s.\n", quoteAll(taxonomy.Labels(taxonomy.KindCategory)))
	fmt.Fprintf(&b, "- subcategory: exactly one of %s, or null if none applies.\n", quoteAll(taxonomy.Labels(taxonomy.KindSubcategory)))
	b.WriteString("- who: the actual name of a person involved, or an empty string.\n")
	b.WriteString("- due_date: an ISO-8601 date-time (YYYY-MM-DDTHH:mm) if a date or deadline is mentioned, otherwise null.\n\n")

	b.WriteString("Choosing type:\n")
	fmt.Fprintf(&b, "- %q: proactive tasks or things to remember that need active attention, not backlog items.\n", taxonomy.TypeFocus)
	fmt.Fprintf(&b, "- %q: questions, requests or interactions with others that can wait until the next meeting or conversation.\n", taxonomy.TypeFollowUp)
	fmt.Fprintf(&b, "- %q: recommendations and discoveries (books, movies, restaurants) to look up later.\n\n", taxonomy.TypeSaveForLater)

	b.WriteString("Choosing who: only real names of people, never generic references such as \"mom\" or \"boss\".\n")
	for _, ex := range whoExamples {
		fmt.Fprintf(&b, "- %q -> who: %q\n", ex.entry, ex.who)
	}
	b.WriteString("\n")

	b.WriteString("Extracting due_date:\n")
	b.WriteString("- Explicit dates (\"due on March 15th\", \"deadline: 3/15\").\n")
	b.WriteString("- Relative dates (\"next Friday\", \"in 2 weeks\", \"tomorrow\"), resolved against the current date below.\n")
	b.WriteString("- Times (\"by 3pm\", \"before 15:00\"); a time alone means the next occurrence of that time.\n")
	fmt.Fprintf(&b, "- If a date has no time, use %s.\n", defaultTime)
	b.WriteString("- Write local wall time without a UTC offset.\n\n")

	fmt.Fprintf(&b, "Current date and time: %s (%s).\n", now.Format(promptDateTimeLayout), now.Location())

	return b.String()
}

// userPrompt wraps the entry, quoting the caller's due-date hint when present.
func userPrompt(entry string, hint *Hint) string {
	var b strings.Builder
	b.WriteString("Analyze this entry:\n\n")
	b.WriteString(entry)
	if hint != nil && hint.DueDate != nil {
		fmt.Fprintf(&b, "\n\nThe user already picked a due date: %s. Use it unless the entry states a different one.",
			hint.DueDate.Format(time.RFC3339))
	}
	return b.String()
}

func quoteAll(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = fmt.Sprintf("%q", l)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
