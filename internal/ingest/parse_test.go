package ingest

import (
	"testing"

	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

const shopDocument = `
shop: Связной
categories:
  - id: 224
    name: Смартфоны
  - id: 15
    name: Аксессуары
goods:
  - id: 4216292
    category: 224
    model: apple/iphone/xs-max
    name: Смартфон Apple iPhone XS Max 512GB (золотистый)
    price: 110000
    price_rrc: 116990
    quantity: 14
    parameters:
      "Диагональ (дюйм)": 6.5
      "Разрешение (пикс)": 2688x1242
      "Встроенная память (Гб)": 512
      "Цвет": золотистый
  - id: 4672670
    category: 15
    model: apple/iphone/case
    name: Чехол
    price: 300
    price_rrc: 400
    quantity: 2
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse([]byte(shopDocument))
	require.NoError(t, err)
	require.Equal(t, "Связной", doc.Shop)
	require.Len(t, doc.Categories, 2)
	require.Len(t, doc.Goods, 2)

	phone := doc.Goods[0]
	require.Equal(t, int64(4216292), phone.ID)
	require.Equal(t, int64(224), phone.Category)
	require.Equal(t, int64(110000), phone.Price)
	require.Equal(t, "6.5", phone.Parameters["Диагональ (дюйм)"])
	require.Equal(t, "512", phone.Parameters["Встроенная память (Гб)"])
	require.Empty(t, doc.Goods[1].Parameters)
}

func TestParseAcceptsJSON(t *testing.T) {
	doc, err := Parse([]byte(`{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price":"10.0","price_rrc":12,"quantity":0}]}`))
	require.NoError(t, err)
	require.Equal(t, int64(10), doc.Goods[0].Price)
	require.Equal(t, "", doc.Goods[0].Model)
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":         "   ",
		"not a mapping": "- 1\n- 2",
		"missing price": `{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price_rrc":12,"quantity":1}]}`,
		"missing shop":  `{"categories":[],"goods":[]}`,
		"fractional":    `{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price":1.5,"price_rrc":12,"quantity":1}]}`,
		"negative":      `{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price":10,"price_rrc":12,"quantity":-1}]}`,
		"text number":   `{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price":"ten","price_rrc":12,"quantity":1}]}`,
		"nested param":  `{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price":1,"price_rrc":12,"quantity":1,"parameters":{"a":[1]}}]}`,
		"undeclared":    `{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":2,"name":"n","price":1,"price_rrc":12,"quantity":1}]}`,
		"renamed":       `{"shop":"s","categories":[{"id":1,"name":"c"},{"id":1,"name":"d"}],"goods":[]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			require.Error(t, err)
			require.Equal(t, pkgerrors.CodeParse, pkgerrors.CodeOf(err))
		})
	}
}

func TestParseNamesMissingField(t *testing.T) {
	_, err := Parse([]byte(`{"shop":"s","categories":[{"id":1,"name":"c"}],"goods":[{"id":7,"category":1,"name":"n","price_rrc":12,"quantity":1}]}`))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, map[string]string{"goods[0].price": "is required"}, typed.Details())
}
