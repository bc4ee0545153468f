package meater

import "net/http"

// Category is the outcome of classifying a status code.
type Category int

const (
	OK Category = iota
	BadRequest
	Unauthorized
	NotFound
	RateLimited
	ServerError
	Unknown
)

var categoryNames = map[Category]string{
	OK:           "OK",
	BadRequest:   "Bad Request",
	Unauthorized: "Unauthorized",
	NotFound:     "Not Found",
	RateLimited:  "Too Many Requests",
	ServerError:  "Internal Server Error",
	Unknown:      "Unknown",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "Unknown"
}

// Classify maps an HTTP status or the API's statusCode field to a category.
// Both codes of a response go through this table independently.
func Classify(code int) Category {
	switch code {
	case http.StatusOK:
		return OK
	case http.StatusBadRequest:
		return BadRequest
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusNotFound:
		return NotFound
	case http.StatusTooManyRequests:
		return RateLimited
	case http.StatusInternalServerError:
		return ServerError
	default:
		return Unknown
	}
}

// Kind returns the error kind for a non-OK category.
func (c Category) Kind() Kind {
	switch c {
	case BadRequest:
		return KindBadRequest
	case Unauthorized:
		return KindUnauthorized
	case NotFound:
		return KindNotFound
	case RateLimited:
		return KindRateLimited
	case ServerError:
		return KindServerError
	default:
		return KindUnknown
	}
}

// statusError builds the error for a response whose transport or payload code is not OK.
// The transport code decides the kind unless it is OK.
func statusError(op string, transport, payload int) *Error {
	cat := Classify(transport)
	if cat == OK {
		cat = Classify(payload)
	}
	class := ClassRemote
	if cat == Unauthorized {
		class = ClassAuth
	}
	return &Error{Op: op, Class: class, Kind: cat.Kind(), Transport: transport, Payload: payload}
}
