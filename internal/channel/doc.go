// Package channel owns the hyper_dmabuf character device that delivers
// display-buffer event records from another domain.
//
// The channel is receive-only. Open tries a short list of device paths,
// Read blocks in poll(2) until a record is readable and then issues exactly
// one read(2), and Close releases the handle. Sending is never supported.
package channel
