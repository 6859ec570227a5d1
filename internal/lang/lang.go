// Package lang selects Spanish or English reply text.
//
// Every user-facing string the router can return without asking the answer
// generator lives here, keyed by a stable name.
package lang

import (
	"fmt"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// Pair holds the Spanish and English variants of one reply.
type Pair struct {
	ES string
	EN string
}

// For returns the variant matching language.
func (p Pair) For(language models.Language) string {
	return Pick(p.ES, p.EN, language)
}

// Format renders the variant matching language with fmt.Sprintf.
func (p Pair) Format(language models.Language, args ...any) string {
	return fmt.Sprintf(p.For(language), args...)
}

// Pick returns es when language is Spanish and en otherwise.
func Pick(es, en string, language models.Language) string {
	if language.IsSpanish() {
		return es
	}
	return en
}

// Canned replies.
var (
	NeedOrderIdentity = Pair{
		ES: "Perfecto! Necesito el número de pedido (tipo #12345) y tu email para poder ayudarte 😊",
		EN: "Hey! I need your order number (like #12345) and email to help you out 😊",
	}
	NeedOrderIdentityForQuery = Pair{
		ES: "Para ayudarte mejor con tu consulta sobre el pedido, necesito el número de pedido (tipo #12345) y tu email 😊",
		EN: "To better help you with your order-related query, I need your order number (like #12345) and email 😊",
	}
	InvalidOrderNumber = Pair{
		ES: "¡Vaya! No encuentro ningún pedido con ese número 😅 ¿Puedes revisarlo y volver a intentarlo?",
		EN: "Oops! Can't find any order with that number 😅 Can you check and try again?",
	}
	EmailMismatch = Pair{
		ES: "¡Ups! El email no coincide con el del pedido 🤔 ¿Puedes revisar si es el correcto?",
		EN: "Oops! The email doesn't match the order 🤔 Can you check if it's the right one?",
	}
	OrderNotFound = Pair{
		ES: "Lo siento, no he podido encontrar información sobre tu pedido.",
		EN: "Sorry, I couldn't find information about your order.",
	}
	ProcessingError = Pair{
		ES: "Lo siento, ha ocurrido un error al procesar tu solicitud. Por favor, intenta de nuevo más tarde.",
		EN: "Sorry, there was an error processing your request. Please try again later.",
	}
	GenericError = Pair{
		ES: "Lo siento, ha ocurrido un error. Por favor, intenta de nuevo más tarde.",
		EN: "Sorry, there was an error. Please try again later.",
	}
	HighDemand = Pair{
		ES: "Lo siento, estamos experimentando una alta demanda en este momento. Por favor, intenta de nuevo en unos minutos.",
		EN: "Sorry, we're experiencing high demand at the moment. Please try again in a few minutes.",
	}
	ConversationEnd = Pair{
		ES: "¡Gracias por confiar en Shameless Collective! Si necesitas algo más, aquí estaré 😊",
		EN: "Thanks for trusting Shameless Collective! If you need anything else, I'll be here 😊",
	}

	ReturnsExchange = Pair{
		ES: "¡Claro! Puedes hacer el cambio o devolución en el siguiente link: https://shameless-returns-web.vercel.app. Recuerda que el número de pedido es algo como #35500 y lo puedes encontrar en el correo de confirmación de pedido.",
		EN: "Sure thing! You can make the change or return in the following link: https://shameless-returns-web.vercel.app. Remember that the order number is of the form #35500 and you can find it in the order confirmation email.",
	}

	AddressUpdated = Pair{
		ES: "¡Perfecto! He actualizado la dirección de envío a:\n\n%s\n\n¡Tu pedido se enviará a esta nueva dirección! 📦✨",
		EN: "Perfect! I've updated the shipping address to:\n\n%s\n\nYour order will be shipped to this new address! 📦✨",
	}
	AddressUpdateFailed = Pair{
		ES: "Lo siento, ha ocurrido un error al actualizar la dirección. Por favor, intenta de nuevo más tarde.",
		EN: "Sorry, there was an error updating the address. Please try again later.",
	}
	AddressChangeInProgress = Pair{
		ES: "Ya estoy gestionando un cambio de dirección para este pedido. Dame un momento y vuelve a escribirme 😊",
		EN: "I'm already working on an address change for this order. Give me a moment and write to me again 😊",
	}

	CallCompleted = Pair{
		ES: "¡Perfecto! He iniciado el proceso de cambio de dirección con la empresa de envíos. Te contactarán pronto para confirmar los detalles.",
		EN: "Perfect! I've initiated the address change process with the shipping company. They'll contact you soon to confirm the details.",
	}
	CallFailed = Pair{
		ES: "Lo siento, la llamada a la empresa de envíos no se ha podido completar. Por favor, intenta de nuevo más tarde.",
		EN: "I'm sorry, the call to the shipping company didn't go through. Please try again later.",
	}
	CallWaitTimeout = Pair{
		ES: "Lo siento, no pude contactar con la empresa de envíos. Por favor, intenta llamar más tarde.",
		EN: "I'm sorry, I couldn't contact the shipping company. Please try calling later.",
	}
	CallNotInitiated = Pair{
		ES: "Lo siento, ha habido un error al intentar cambiar la dirección de envío. Por favor, intenta llamar más tarde.",
		EN: "I'm sorry, there was an error trying to change the delivery address. Please try calling later.",
	}
	CallOpening = Pair{
		ES: "Hola, soy Silvia. Llamo para cambiar la dirección de envío de mi pedido",
		EN: "Hello, this is Silvia. I'm calling to change the delivery address of my order.",
	}

	InvoiceSent = Pair{
		ES: "¡Perfecto! Te he enviado la factura por email 📧",
		EN: "Perfect! I've sent the invoice to your email 📧",
	}
	InvoiceFailed = Pair{
		ES: "Lo siento, ha ocurrido un error al generar la factura. Por favor, intenta de nuevo más tarde.",
		EN: "Sorry, there was an error generating the invoice. Please try again later.",
	}

	AskSizingProduct = Pair{
		ES: "¿Sobre qué producto te gustaría saber la talla?",
		EN: "Which product would you like to know the size for?",
	}
	AskSizingDetails = Pair{
		ES: "Para recomendarte la mejor talla del %s, necesito saber:",
		EN: "To recommend the best size for the %s, I need to know:",
	}
	AskHeight = Pair{
		ES: "- Tu altura (en cm)",
		EN: "- Your height (in cm)",
	}
	AskFit = Pair{
		ES: "- Cómo te gusta que te quede (ajustado, normal, holgado)",
		EN: "- Your preferred fit (tight, regular, loose)",
	}
	ProductNotFound = Pair{
		ES: "Lo siento, no he podido encontrar información sobre ese producto.",
		EN: "Sorry, I couldn't find information about that product.",
	}

	AskRestockProduct = Pair{
		ES: "¿De qué producto te gustaría saber la disponibilidad?",
		EN: "Which product would you like to know the availability of?",
	}
	ProductAvailable = Pair{
		ES: "¡Sí! El %s está disponible en nuestra tienda. ¿Quieres que te ayude a comprarlo?",
		EN: "Yes! The %s is available in our store. Would you like help purchasing it?",
	}
	AskRestockEmail = Pair{
		ES: "El %s está agotado en este momento. Si me dejas tu email, te avisaré cuando vuelva a estar disponible 😊",
		EN: "The %s is currently out of stock. If you share your email with me, I'll notify you when it's back in stock 😊",
	}
	RestockRegistered = Pair{
		ES: "¡Perfecto! Te avisaré cuando el %s vuelva a estar disponible 😊",
		EN: "Perfect! I'll notify you when the %s is back in stock 😊",
	}
	RetryError = Pair{
		ES: "Lo siento, ha ocurrido un error. ¿Podrías intentarlo de nuevo?",
		EN: "I'm sorry, there was an error. Could you please try again?",
	}

	PromoCodeRequest = Pair{
		ES: "Vamos a hacer una cosa, si me dejas tu email te crearé un descuento del 20% que podrás usar durante los próximos 15 minutos😊",
		EN: "Let's do something, if you share your email with me I'll create a 20% discount you can use for the next 15 minutes 😊",
	}
	PromoCodeExistingCustomer = Pair{
		ES: "Aquí tienes tu código de descuento del 20%%: %s. Hemos visto que ya eres cliente, así que te lo damos igualmente. ¡No se lo digas a nadie! Caduca en 15 minutos, ¡aprovéchalo!",
		EN: "Here's your 20%% discount code: %s. We've seen that you're already a customer, so we're giving it to you for free. Don't tell anyone! It expires in 15 minutes so take advantage of it!",
	}
	PromoCodeNewCustomer = Pair{
		ES: "Aquí tienes tu código de descuento del 20%%: %s. ¡No se lo digas a nadie! Caduca en 15 minutos, ¡aprovéchalo!",
		EN: "Here's your 20%% discount code: %s. Don't tell anyone! It expires in 15 minutes so take advantage of it!",
	}
	PromoCodeFailed = Pair{
		ES: "Lo siento, ha ocurrido un error al crear el descuento. ¿Podrías intentarlo de nuevo?",
		EN: "I'm sorry, there was an error creating the discount. Could you please try again?",
	}
)
