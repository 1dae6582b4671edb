// Package ics serves calendar events from iCalendar feeds.
//
// Feeds are fetched with conditional GETs and cached in memory; VEVENTs are
// parsed with golang-ical and recurring events are expanded with rrule-go
// inside the queried range. Priority and the X-IMPACT / X-CURRENCY
// properties map to impact and currency.
package ics
