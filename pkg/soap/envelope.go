package soap

import (
	"bytes"
	"fmt"
	"strings"
)

// Envelope namespaces declared on every request.
const (
	NamespaceSOAP = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceXSD  = "http://www.w3.org/2001/XMLSchema"
	NamespaceXSI  = "http://www.w3.org/2001/XMLSchema-instance"
)

const xmlHeader = "<?xml version='1.0' encoding='utf-8'?>\n"

// Param is a single action parameter.
type Param struct {
	Name  string
	Value string
}

// Params is an ordered list of action parameters. Order is preserved on the
// wire.
type Params []Param

// Add appends a parameter, coercing value to its string representation.
func (p Params) Add(name string, value any) Params {
	return append(p, Param{Name: name, Value: fmt.Sprint(value)})
}

// Get returns the value of the first parameter with the given name.
func (p Params) Get(name string) (string, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}

	return "", false
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// BuildEnvelope renders the request document for method. The action element
// carries actionNS as its default namespace and each parameter becomes one
// child element. Empty values are written as self-closing elements.
func BuildEnvelope(actionNS, method string, params Params) []byte {
	var b bytes.Buffer

	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<soap:Envelope xmlns:soap="%s" xmlns:xsd="%s" xmlns:xsi="%s">`,
		NamespaceSOAP, NamespaceXSD, NamespaceXSI)
	b.WriteString("<soap:Body>")

	if len(params) == 0 {
		fmt.Fprintf(&b, `<%s xmlns="%s" />`, method, actionNS)
	} else {
		fmt.Fprintf(&b, `<%s xmlns="%s">`, method, actionNS)

		for _, p := range params {
			if p.Value == "" {
				fmt.Fprintf(&b, "<%s />", p.Name)
				continue
			}

			fmt.Fprintf(&b, "<%s>%s</%s>", p.Name, textEscaper.Replace(p.Value), p.Name)
		}

		fmt.Fprintf(&b, "</%s>", method)
	}

	b.WriteString("</soap:Body></soap:Envelope>")

	return b.Bytes()
}
