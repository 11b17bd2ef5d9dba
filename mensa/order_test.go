package mensa

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var ada = Profile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.test"}

func TestSubmitOrder(t *testing.T) {
	f, srv := newFakeMensa(t)
	c := newTestClient(t, srv)

	// the caller's own snapshot holds session s1
	_, _, err := c.FetchMenu(context.Background())
	require.NoError(t, err)

	conf, err := c.SubmitOrder(context.Background(), "2024-03-04", "abc123", ada, "12:00")
	require.NoError(t, err)
	require.False(t, conf.DryRun)
	require.NotEmpty(t, conf.Attempt)
	require.Equal(t, "12:00:00", conf.Slot.Label)
	require.Equal(t, "abc123", conf.Meal.Hash)
	require.Equal(t, "Vielen Dank! Bestellung erhalten", conf.Summary())

	require.Equal(t, 2, f.menuHits)
	require.Equal(t, 1, f.orderHits)
	require.Equal(t, "s2", f.orderCookie, "order must use the session of the re-fetched menu")
	require.Equal(t, "add", f.orderQuery.Get("order"))
	require.Equal(t, "de", f.orderQuery.Get("language"))

	form := f.orderForm
	require.Equal(t, "Mensa Süd", form.Get("client[einrichtung]"))
	require.Equal(t, "2", form.Get("client[einrichtung_val]"))
	require.Equal(t, "Ada", form.Get("client[vorname]"))
	require.Equal(t, "Lovelace", form.Get("client[name]"))
	require.Equal(t, "ada@x.test", form.Get("client[email]"))
	require.Equal(t, "true", form.Get("client[nv2]"))
	require.Equal(t, "true", form.Get("client[save_allowed]"))
	require.Equal(t, "12:00", form.Get("client[deliver_time_val]"))
	require.Equal(t, "2024-03-04", form.Get("client[date_iso]"))
	require.Equal(t, "Montag, 04.03.", form.Get("client[date_hr]"))
	require.Equal(t, "1", form.Get("basket_positions[4711]"))
	require.Equal(t, "4711", form.Get("basket_full[4711][id]"))
	require.Equal(t, "Hauptgericht", form.Get("basket_full[4711][category]"))
	require.Equal(t, "Linsen<sup>1</sup> mit Spätzle & Saitenwürstle (V)", form.Get("basket_full[4711][title]"))
	require.Equal(t, "3,10", form.Get("basket_full[4711][preis1]"))
	require.Equal(t, "4,90", form.Get("basket_full[4711][preis2]"))
	require.Equal(t, "6,20", form.Get("basket_full[4711][preis3]"))
	require.Equal(t, "1", form.Get("basket_full[4711][anzahl]"))

	html := form.Get("basket_html")
	require.True(t, strings.HasPrefix(html, "<tbody><tr><th>Anzahl</th>"))
	require.Contains(t, html, `<td aid_check="4711">Linsen<sup>1</sup></td> <td class="preis">3,10 €</td>`)
}

func TestSubmitOrderDryRun(t *testing.T) {
	f, srv := newFakeMensa(t)
	c := newTestClient(t, srv, func(o *Options) { o.DryRun = true })

	conf, err := c.SubmitOrder(context.Background(), "2024-03-04", "abc123", ada, "12:30")
	require.NoError(t, err)
	require.True(t, conf.DryRun)
	require.Empty(t, conf.Summary())
	require.Equal(t, 1, f.menuHits)
	require.Equal(t, 1, f.slotHits)
	require.Zero(t, f.orderHits)
}

func TestSubmitOrderLookupFailures(t *testing.T) {
	cases := []struct {
		name   string
		date   string
		hash   string
		slot   string
		slots  string
		target error
	}{
		{"unknown day", "2024-03-09", "abc123", "12:00", "", ErrDayNotFound},
		{"meal gone", "2024-03-04", "stale", "12:00", "", ErrMealNotFound},
		{"meal on other day", "2024-03-05", "abc123", "12:00", "", ErrMealNotFound},
		{"no such slot", "2024-03-04", "abc123", "14:00", "", ErrSlotNotFound},
		{"slot full", "2024-03-04", "abc123", "11:30", "", ErrSlotFull},
		{"slot overbooked", "2024-03-04", "abc123", "12:00", `{"12:00:00":-1}`, ErrSlotFull},
		{"no slots at all", "2024-03-04", "abc123", "12:00", `[]`, ErrSlotNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, srv := newFakeMensa(t)
			if tc.slots != "" {
				f.set(func(f *fakeMensa) { f.slotsRaw = tc.slots })
			}
			_, err := newTestClient(t, srv).SubmitOrder(context.Background(), tc.date, tc.hash, ada, tc.slot)
			require.ErrorIs(t, err, tc.target)
			require.Zero(t, f.orderHits)
		})
	}
}

func TestSubmitOrderUsesFreshMenu(t *testing.T) {
	f, srv := newFakeMensa(t)
	c := newTestClient(t, srv)

	_, menu, err := c.FetchMenu(context.Background())
	require.NoError(t, err)
	day, _ := menu.Day("2024-03-04")
	_, ok := day.Meal("abc123")
	require.True(t, ok)

	f.set(func(f *fakeMensa) { f.menu = sampleMenu("def456") })
	_, err = c.SubmitOrder(context.Background(), "2024-03-04", "abc123", ada, "12:00")
	require.ErrorIs(t, err, ErrMealNotFound)
}

func TestSubmitOrderPostIsNotRetried(t *testing.T) {
	f, srv := newFakeMensa(t)
	f.set(func(f *fakeMensa) { f.orderCode = http.StatusBadGateway })

	_, err := newTestClient(t, srv).SubmitOrder(context.Background(), "2024-03-04", "abc123", ada, "12:00")
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.Equal(t, 1, f.orderHits)
}

func TestErrorMatching(t *testing.T) {
	err := error(newError(KindSlotFull, "order", "12:00:00"))
	require.ErrorIs(t, err, ErrSlotFull)
	require.NotErrorIs(t, err, ErrSlotNotFound)
	require.Equal(t, "mensa: order: slot full: 12:00:00", err.Error())

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindSlotFull, kind)

	_, ok = KindOf(context.Canceled)
	require.False(t, ok)
}
