package genai

import (
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

const storeName = "Shameless Collective"

var classifierPrompt = `You classify customer-support messages for the online clothing store ` + storeName + `.
Reply with a single JSON object and nothing else:
{"intent": "<intent>", "parameters": {...}, "language": "Spanish" | "English"}

Intents:
- order_tracking: where is my order, shipping status
- returns_exchange: return or exchange a product
- delivery_issue: order arrived damaged, incomplete or never arrived
- change_delivery: change the delivery address of an order
- product_sizing: which size to pick for a product
- update_order: change items, sizes or details of an existing order
- restock: when will a sold-out product be available again
- promo_code: asks for a discount or promo code
- invoice_request: asks for an invoice of an order
- other-order: any other question about a specific order
- other-general: anything else

Parameters (include only those present in the message or earlier turns):
order_number (like "#12345"), email, new_delivery_info (the full new address as written),
delivery_address_confirmed (true only if the customer explicitly confirmed the new address),
update_type, product_name, height, fit (tight, regular, oversized), weight, usual_size.

language is "Spanish" if the customer writes in Spanish, otherwise "English".`

var intentGuidance = map[models.Intent]string{
	models.IntentOrderTracking:  "Explain the order status using the fulfillment and tracking data. If there are no fulfillments yet, say the order is being prepared.",
	models.IntentDeliveryIssue:  "Apologise, summarise the order, and tell the customer the support team has been notified and will contact them by email.",
	models.IntentUpdateOrder:    "Explain what can be changed on the order given its state. Orders with fulfillments can no longer be modified.",
	models.IntentProductSizing:  "Recommend one size using the size chart, the customer's height and preferred fit. Mention the chart measurements you used.",
	models.IntentOtherOrder:     "Answer the question about the order using the order data.",
	models.IntentChangeDelivery: "Confirm the delivery address change.",
}

func answerPrompt(intent models.Intent, language models.Language) string {
	var b strings.Builder
	b.WriteString("You are the customer-support assistant of ")
	b.WriteString(storeName)
	b.WriteString(", an online clothing store. Be warm, brief and concrete. Use at most one emoji.\n")
	if g, ok := intentGuidance[intent]; ok {
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString("Never invent order data that is not in the context.\n")
	b.WriteString(replyLanguage(language))
	return b.String()
}

func confirmAddressPrompt(language models.Language) string {
	return "You are the customer-support assistant of " + storeName + ". The customer wants to change the delivery address of an order. " +
		"If no new address is known, ask for the complete new address (street and number, postal code, city, province). " +
		"If an address is known, repeat it back and ask the customer to confirm it explicitly. Do not claim the change is done.\n" +
		replyLanguage(language)
}

const validateAddressPrompt = `You validate Spanish postal addresses.
If the text contains a complete address (street, number, postal code and city), reply with
{"formattedAddress": "<street and number>, <postal code> <city>, <province>, España"}.
Otherwise reply with {"formattedAddress": ""}. Reply with JSON only.`

func replyLanguage(language models.Language) string {
	if language.IsSpanish() {
		return "Reply in Spanish."
	}
	return "Reply in English."
}
