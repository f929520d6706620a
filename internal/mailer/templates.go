package mailer

import (
	"bytes"
	"html/template"

	"github.com/pawzr/marketplace/internal/orders"
)

var funcs = template.FuncMap{
	"money": orders.FormatCents,
	"lineTotal": func(it orders.ItemPrice) string {
		return orders.FormatCents(it.PriceCents * int64(it.Qty))
	},
}

var newOrderTmpl = template.Must(template.New("new_order").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
  <div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
    <h2>New order received</h2>
    <p>Hi {{.SupplierName}}, you have a new order on Pawzr.</p>
    <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
      <thead>
        <tr><th align="left">Product</th><th align="left">Qty</th><th align="left">Unit</th><th align="left">Total</th></tr>
      </thead>
      <tbody>
        {{range .Order.Items}}<tr><td>{{.ProductID}}</td><td>{{.Qty}}</td><td>${{money .PriceCents}}</td><td>${{lineTotal .}}</td></tr>
        {{end}}
      </tbody>
    </table>
    <p>Subtotal: ${{money .Order.SubtotalCents}}<br>
       Platform fee: ${{money .Order.PlatformFeeCents}}<br>
       Order total: ${{money .Order.TotalCents}}</p>
    <p>Ship to: {{.Order.ShippingAddress}}</p>
    <p><a href="{{.Link}}">Open your orders</a></p>
  </div>
</body>
</html>`))

var statusTmpl = template.Must(template.New("status").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
  <div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
    <h2>Order update</h2>
    <p>Hi {{.Name}}, order {{.Change.OrderID}} moved from {{.Change.From}} to {{.Change.To}}.</p>
    <p><a href="{{.Link}}">View order</a></p>
  </div>
</body>
</html>`))

func NewOrderEmail(supplierName, link string, o orders.OrderCreatedPayload) (subject, body string, err error) {
	var buf bytes.Buffer
	err = newOrderTmpl.Execute(&buf, struct {
		SupplierName string
		Link         string
		Order        orders.OrderCreatedPayload
	}{supplierName, link, o})
	return "New order on Pawzr", buf.String(), err
}

func StatusEmail(name, link string, c orders.OrderStatusChangedPayload) (subject, body string, err error) {
	var buf bytes.Buffer
	err = statusTmpl.Execute(&buf, struct {
		Name   string
		Link   string
		Change orders.OrderStatusChangedPayload
	}{name, link, c})
	return "Your order is now " + string(c.To), buf.String(), err
}
