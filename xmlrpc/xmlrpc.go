// Package xmlrpc is a minimal XMLRPC client/server so a node can speak the
// master and slave APIs. It covers the value types those APIs use and nothing
// more.
package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

func xmlEscape(s string) string {
	var buffer bytes.Buffer
	xml.Escape(&buffer, []byte(s))
	return buffer.String()
}

func emitValue(buf *bytes.Buffer, value interface{}) error {
	if bs, ok := value.([]byte); ok {
		buf.WriteString("<base64>")
		buf.WriteString(base64.StdEncoding.EncodeToString(bs))
		buf.WriteString("</base64>")
		return nil
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return nil
	}

	t := val.Type()
	k := val.Kind()
	switch k {
	case reflect.Bool:
		var i int
		if val.Bool() {
			i = 1
		}
		buf.WriteString("<boolean>")
		buf.WriteString(fmt.Sprint(i))
		buf.WriteString("</boolean>")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString("<int>")
		buf.WriteString(strconv.FormatInt(val.Int(), 10))
		buf.WriteString("</int>")
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString("<int>")
		buf.WriteString(strconv.FormatInt(int64(val.Uint()), 10))
		buf.WriteString("</int>")
	case reflect.Float32, reflect.Float64:
		buf.WriteString("<double>")
		buf.WriteString(strconv.FormatFloat(val.Float(), 'g', -1, 64))
		buf.WriteString("</double>")
	case reflect.Array, reflect.Slice:
		buf.WriteString("<array><data>")
		for i := 0; i < val.Len(); i++ {
			buf.WriteString("<value>")
			if err := emitValue(buf, val.Index(i).Interface()); err != nil {
				return err
			}
			buf.WriteString("</value>")
		}
		buf.WriteString("</data></array>")
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return errors.New("map key must be string")
		}
		buf.WriteString("<struct>")
		for _, key := range val.MapKeys() {
			buf.WriteString("<member><name>")
			buf.WriteString(xmlEscape(key.String()))
			buf.WriteString("</name><value>")
			if err := emitValue(buf, val.MapIndex(key).Interface()); err != nil {
				return err
			}
			buf.WriteString("</value></member>")
		}
		buf.WriteString("</struct>")
	case reflect.String:
		buf.WriteString("<string>")
		buf.WriteString(xmlEscape(val.String()))
		buf.WriteString("</string>")
	default:
		return errors.Errorf("invalid kind %v of type %v", k.String(), val.Type().Name())
	}
	return nil
}

func emitRequest(buf *bytes.Buffer, method string, args ...interface{}) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	buf.WriteString(xmlEscape(method))
	buf.WriteString("</methodName><params>")
	for _, arg := range args {
		buf.WriteString("<param><value>")
		if err := emitValue(buf, arg); err != nil {
			return err
		}
		buf.WriteString("</value></param>")
	}
	buf.WriteString("</params></methodCall>")
	return nil
}

func emitResponse(buf *bytes.Buffer, value interface{}) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodResponse><params><param><value>")
	if err := emitValue(buf, value); err != nil {
		return err
	}
	buf.WriteString("</value></param></params></methodResponse>")
	return nil
}

func emitFault(buf *bytes.Buffer, code int, message string) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodResponse><fault><value>")
	fault := make(map[string]interface{})
	fault["faultCode"] = code
	fault["faultString"] = message
	if err := emitValue(buf, fault); err != nil {
		return err
	}
	buf.WriteString("</value></fault></methodResponse>")
	return nil
}

func nextTag(d *xml.Decoder) (xml.StartElement, error) {
	for {
		token, err := d.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if elem, ok := token.(xml.StartElement); ok {
			return elem, nil
		}
	}
}

func expectNextTag(d *xml.Decoder, name string) (xml.StartElement, error) {
	tag, err := nextTag(d)
	if err != nil {
		return xml.StartElement{}, err
	}
	if tag.Name.Local == name {
		return tag, nil
	}
	return xml.StartElement{}, errors.Errorf("expected element %s but found %s", name, tag.Name.Local)
}

// Parse a value after the <value> tag has been read.  On (non-error)
// return, the </value> closing tag will have been read.
func parseValue(d *xml.Decoder) (interface{}, error) {
	token, err := d.Token()
	if err != nil {
		return nil, err
	}

	switch t := token.(type) {
	case xml.StartElement:
		switch t.Name.Local {
		case "boolean":
			token, err := d.Token()
			if err != nil {
				return nil, err
			}
			data, ok := token.(xml.CharData)
			if !ok {
				return nil, errors.New("boolean: not a CharData")
			}
			i, err := strconv.ParseInt(string(data), 10, 4)
			if err != nil {
				return nil, err
			}
			switch i {
			case 0:
				d.Skip() // </boolean>
				d.Skip() // </value>
				return false, nil
			case 1:
				d.Skip() // </boolean>
				d.Skip() // </value>
				return true, nil
			default:
				return nil, errors.Errorf("boolean: %d out of range", i)
			}
		case "i4", "int":
			token, err := d.Token()
			if err != nil {
				return nil, err
			}
			data, ok := token.(xml.CharData)
			if !ok {
				return nil, errors.New("int: not a CharData")
			}
			i, err := strconv.ParseInt(string(data), 0, 32)
			if err != nil {
				return nil, err
			}
			d.Skip() // </i4> or </int>
			d.Skip() // </value>
			return int32(i), nil
		case "double":
			token, err := d.Token()
			if err != nil {
				return nil, err
			}
			data, ok := token.(xml.CharData)
			if !ok {
				return nil, errors.New("double: not a CharData")
			}
			f, err := strconv.ParseFloat(string(data), 64)
			if err != nil {
				return nil, err
			}
			d.Skip() // </double>
			d.Skip() // </value>
			return f, nil
		case "string":
			token, err := d.Token()
			if err != nil {
				return nil, err
			}
			if data, ok := token.(xml.CharData); ok {
				s := string(data.Copy())
				d.Skip() // </string>
				d.Skip() // </value>
				return s, nil
			}
			if end, ok := token.(xml.EndElement); ok && end.Name.Local == "string" {
				d.Skip() // </value>
				return "", nil
			}
			return nil, errors.New("string: parse error")
		case "dateTime.iso8601":
			return nil, errors.New("dateTime.iso8601 is not supported")
		case "base64":
			token, err := d.Token()
			if err != nil {
				return nil, err
			}
			data, ok := token.(xml.CharData)
			if !ok {
				return nil, errors.New("base64: not a CharData")
			}
			bs, err := base64.StdEncoding.DecodeString(string(data))
			if err != nil {
				return nil, err
			}
			d.Skip() // </base64>
			d.Skip() // </value>
			return bs, nil
		case "array":
			if _, err := expectNextTag(d, "data"); err != nil {
				return nil, err
			}
			var a []interface{}
			for {
				t, err := d.Token()
				if err != nil {
					return nil, err
				}
				switch elem := t.(type) {
				case xml.StartElement:
					if elem.Name.Local == "value" {
						val, err := parseValue(d)
						if err != nil {
							return nil, err
						}
						a = append(a, val)
					}
				case xml.EndElement:
					if elem.Name.Local == "array" {
						d.Skip() // </value>
						return a, nil
					}
				}
			}
		case "struct":
			m := make(map[string]interface{})
			var name string
			var value interface{}
			for {
				t, err := d.Token()
				if err != nil {
					return nil, err
				}
				switch elem := t.(type) {
				case xml.StartElement:
					switch elem.Name.Local {
					case "member":
					case "name":
						t, err = d.Token()
						if err != nil {
							return nil, err
						}
						data, ok := t.(xml.CharData)
						if !ok {
							return nil, errors.New("struct: member name is not a CharData")
						}
						name = string(data)
					case "value":
						value, err = parseValue(d)
						if err != nil {
							return nil, err
						}
					}
				case xml.EndElement:
					switch elem.Name.Local {
					case "member":
						m[name] = value
					case "struct":
						d.Skip() // </value>
						return m, nil
					}
				}
			}
		default:
			return nil, errors.New("not supported: t.Name.Local = " + t.Name.Local)
		}
	case xml.CharData:
		copied := t.Copy()
		// Spaces and newlines for pretty formatting of xml
		// show up as chardata, so here we ignore them.
		stripped := strings.TrimSpace(string(copied))
		if stripped != "" {
			d.Skip() // </value>
			return string(copied), nil
		}
		return parseValue(d)
	case xml.EndElement:
		return "", nil
	}

	return nil, errors.New("invalid data type")
}

func parseRequest(d *xml.Decoder) (name string, args []interface{}, err error) {
	if _, err = expectNextTag(d, "methodCall"); err != nil {
		return
	}
	if _, err = expectNextTag(d, "methodName"); err != nil {
		return
	}
	var t xml.Token
	t, err = d.Token()
	if err != nil {
		return
	}
	data, ok := t.(xml.CharData)
	if !ok {
		err = errors.New("invalid methodName")
		return
	}
	name = string(data)
	if _, err = expectNextTag(d, "params"); err != nil {
		return
	}
	for {
		t, err = d.Token()
		if err != nil {
			return
		}
		switch elem := t.(type) {
		case xml.StartElement:
			if elem.Name.Local == "value" {
				var x interface{}
				x, err = parseValue(d)
				if err != nil {
					return
				}
				args = append(args, x)
			}
		case xml.EndElement:
			if elem.Name.Local == "params" {
				d.Skip()
				return
			}
		}
	}
}

func parseResponse(d *xml.Decoder) (ok bool, result interface{}, err error) {
	if _, err = expectNextTag(d, "methodResponse"); err != nil {
		return
	}
	var se xml.StartElement
	se, err = nextTag(d)
	if err != nil {
		return
	}
	switch se.Name.Local {
	case "params":
		if _, err = expectNextTag(d, "param"); err != nil {
			return
		}
		if _, err = expectNextTag(d, "value"); err != nil {
			return
		}
		result, err = parseValue(d)
		if err != nil {
			return
		}
		ok = true
		d.Skip()
		d.Skip()
		d.Skip()
		return
	case "fault":
		if _, err = expectNextTag(d, "value"); err != nil {
			return
		}
		result, err = parseValue(d)
		if err != nil {
			return
		}
		ok = false
		d.Skip()
		d.Skip()
		return
	}
	err = errors.New("missing end element")
	return
}

// Call invokes method on the XMLRPC endpoint at url.
func Call(url string, method string, args ...interface{}) (interface{}, error) {
	var buffer bytes.Buffer
	if err := emitRequest(&buffer, method, args...); err != nil {
		return nil, errors.Wrap(err, "building request failed")
	}
	r, err := http.Post(url, "text/xml", &buffer)
	if err != nil {
		return nil, errors.Wrap(err, "sending request failed")
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return nil, errors.Errorf("HTTP failed with code %v", r.Status)
	}

	decoder := xml.NewDecoder(r.Body)
	ok, result, err := parseResponse(decoder)
	if err != nil {
		return nil, errors.Wrap(err, "parsing response failed")
	}
	if ok {
		return result, nil
	}
	if m, ok := result.(map[string]interface{}); ok {
		if c, ok := m["faultCode"].(int32); ok {
			if s, ok := m["faultString"].(string); ok {
				return nil, errors.Errorf("XMLRPC fault: code=%v string=%v", c, s)
			}
		}
	}
	return nil, errors.New("malformed XMLRPC fault response")
}

// Method is a func with XMLRPC compatible arguments, returning
// (interface{}, error).
type Method interface{}

// Handler dispatches incoming XMLRPC requests to registered methods.
type Handler struct {
	mapping map[string]Method
	wait    sync.WaitGroup
}

func NewHandler(mapping map[string]Method) *Handler {
	handler := new(Handler)
	handler.mapping = mapping
	return handler
}

// WaitForShutdown blocks until requests in flight have been served.
func (h *Handler) WaitForShutdown() {
	h.wait.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.wait.Add(1)
	defer h.wait.Done()

	decoder := xml.NewDecoder(req.Body)
	var buffer bytes.Buffer

	name, args, err := parseRequest(decoder)
	if err != nil {
		emitFault(&buffer, 1, "Invalid request.")
		buffer.WriteTo(w)
		return
	}

	method, ok := h.mapping[name]
	if !ok {
		emitFault(&buffer, 1, fmt.Sprintf("No method named '%v'.", name))
		buffer.WriteTo(w)
		return
	}

	argValues := []reflect.Value{}
	for _, v := range args {
		argValues = append(argValues, reflect.ValueOf(v))
	}
	resultValues := reflect.ValueOf(method).Call(argValues)
	if len(resultValues) != 2 {
		emitFault(&buffer, 1, fmt.Sprintf("Method '%v' return invalid results.", name))
		buffer.WriteTo(w)
		return
	}
	errValue := resultValues[1]
	if !errValue.IsNil() {
		emitFault(&buffer, 1, fmt.Sprintf("Method '%v' call failed.", name))
		buffer.WriteTo(w)
		return
	}

	if err := emitResponse(&buffer, resultValues[0].Interface()); err != nil {
		emitFault(&buffer, 1, fmt.Sprintf("Method '%v' return an invalid result type.", name))
		buffer.WriteTo(w)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(buffer.Len()))
	buffer.WriteTo(w)
	w.(http.Flusher).Flush()
}
