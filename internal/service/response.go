package service

import (
	"fmt"
	"strconv"
	"strings"

	"estate-assistant/internal/model"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ApologyText is returned when no path could produce a reply
const ApologyText = "I apologize, but I encountered an error while processing your request. Could you please try again?"

const assistantPersona = "You are Janaki, an AI voice assistant specializing in real estate. " +
	"Keep responses concise and natural. Avoid using markdown or special characters. " +
	"When mentioning prices, format them in a readable way (e.g., '2 crore' instead of '20000000'). " +
	"You can help users find both rental and sale properties. " +
	"For commercial properties, focus on location, type, and area. Don't ask about bedrooms or residential features. " +
	"For residential properties, you can ask about bedrooms and other residential features. " +
	"For general questions, provide helpful answers while staying professional and friendly. " +
	"IMPORTANT: Never say you can't filter by rental or sale - you have this capability. " +
	"IMPORTANT: If properties are found, always describe them based on the actual filtered results. "

const promptClosing = "Assistant: Remember to respond naturally without using markdown or special characters. " +
	"Format the response in a way that's easy to read and speak:"

// FormatResults renders properties with the fixed results template. Price,
// location and area are always present; bedrooms, bathrooms and description
// lines appear only when the record has them.
func FormatResults(properties []model.PropertyRecord) string {
	printer := message.NewPrinter(language.English)

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d properties matching your criteria:\n\n", len(properties))
	for i, p := range properties {
		fmt.Fprintf(&b, "Property %d:\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", p.Title)
		fmt.Fprintf(&b, "Location: %s, %s\n", orNA(model.StringValue(p.City)), orNA(model.StringValue(p.State)))
		fmt.Fprintf(&b, "Type: %s\n", orNA(p.DisplayType()))

		var price int64
		if p.Price != nil {
			price = *p.Price
		}
		b.WriteString(printer.Sprintf("Price: ₹%d\n", price))

		if beds := p.BedroomCount(); beds != nil && *beds > 0 {
			fmt.Fprintf(&b, "Bedrooms: %d\n", *beds)
		}
		if p.Bathrooms != nil && *p.Bathrooms > 0 {
			fmt.Fprintf(&b, "Bathrooms: %s\n", strconv.FormatFloat(*p.Bathrooms, 'f', -1, 64))
		}

		area := 0
		if p.SquareFeet != nil {
			area = *p.SquareFeet
		}
		fmt.Fprintf(&b, "Area: %d sq ft\n", area)

		if p.Description != nil && *p.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", *p.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Would you like more details about any of these properties?")
	return b.String()
}

// FormatNoResults tells the user nothing matched and repeats the filters
// they asked for.
func FormatNoResults(filters model.FilterSet) string {
	var b strings.Builder
	b.WriteString("I couldn't find any properties exactly matching your criteria. ")
	if filters.IsEmpty() {
		return b.String()
	}

	b.WriteString("You were looking for: \n")
	if filters.State != nil {
		fmt.Fprintf(&b, "State: %s\n", *filters.State)
	}
	if filters.City != nil {
		fmt.Fprintf(&b, "City: %s\n", *filters.City)
	}
	if filters.ListingType != nil {
		fmt.Fprintf(&b, "Listing Type: %s\n", *filters.ListingType)
	}
	if filters.PropertyType != nil {
		fmt.Fprintf(&b, "Type: %s\n", *filters.PropertyType)
	}
	if filters.Bedrooms != nil {
		fmt.Fprintf(&b, "%d BHK\n", *filters.Bedrooms)
	}
	b.WriteString("\nWould you like to try with different criteria?")
	return b.String()
}

// PromptInput is everything the generator prompt is built from
type PromptInput struct {
	History      []model.Turn // turns before the current utterance
	Query        string
	Filters      model.FilterSet
	SearchFailed bool
	Window       int
}

// BuildPrompt assembles the persona, the active filters, the recent turns
// and the current utterance into one prompt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(assistantPersona)

	if !in.Filters.IsEmpty() {
		b.WriteString("\n")
		b.WriteString(filterContext(in.Filters))
		if in.SearchFailed {
			b.WriteString("\nProperty search is temporarily unavailable.")
		} else {
			b.WriteString("\nNo properties found matching those criteria.")
		}
	}

	b.WriteString("\n\n")
	history := in.History
	if in.Window > 0 && len(history) > in.Window {
		history = history[len(history)-in.Window:]
	}
	for _, t := range history {
		role := "User"
		if t.Role == model.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Text)
	}

	fmt.Fprintf(&b, "\nUser: %s\n", in.Query)
	b.WriteString(promptClosing)
	return b.String()
}

func filterContext(f model.FilterSet) string {
	var parts []string
	if f.State != nil {
		parts = append(parts, "State: "+*f.State)
	}
	if f.City != nil {
		parts = append(parts, "City: "+*f.City)
	}
	if f.ListingType != nil {
		parts = append(parts, "Listing Type: "+*f.ListingType)
	}
	if f.PropertyType != nil {
		parts = append(parts, "Property Type: "+*f.PropertyType)
	}
	if f.Bedrooms != nil {
		parts = append(parts, "Bedrooms: "+strconv.Itoa(*f.Bedrooms))
	}
	return "Current filters: " + strings.Join(parts, ", ")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

const summaryInstruction = "Summarize the key points from this real estate conversation.\n" +
	"Focus on:\n" +
	"1. Property requirements mentioned\n" +
	"2. Areas of interest\n" +
	"3. Budget constraints\n" +
	"4. Timeline for purchase/rent\n" +
	"5. Any specific concerns raised\n\n"

// BuildSummaryPrompt asks the generator to summarize the whole history
func BuildSummaryPrompt(turns []model.Turn) string {
	var b strings.Builder
	b.WriteString(summaryInstruction)
	b.WriteString("Conversation:\n")
	for _, t := range turns {
		role := "User"
		if t.Role == model.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Text)
	}
	b.WriteString("\nSummary:")
	return b.String()
}
