package gmaps

// The scripts below run inside the place page. Selectors track the current
// maps markup and are expected to rot, which is why every extraction path
// reports a layout mismatch instead of guessing.

const consentScript = `(function () {
  const selectors = [
    'button[aria-label="Accept all"]',
    'button[aria-label="Aceptar todo"]',
    'button[aria-label="I agree"]',
    'button.VfPpkd-LgbsSe-OWXEXe-k8QpJ'
  ];
  for (const sel of selectors) {
    const btn = document.querySelector(sel);
    if (btn) {
      btn.click();
      return true;
    }
  }
  return false;
})();`

const headerScript = `(function () {
  const title = document.querySelector('h1.DUwDvf, .a5H0ec');
  const rating = document.querySelector('div.F7nice span[aria-hidden="true"]');
  const count = document.querySelector('div.F7nice span[aria-label]');
  const signInLink = document.querySelector('a[href*="ServiceLogin"], a[aria-label="Sign in"]');
  return JSON.stringify({
    found: !!title,
    name: title ? title.textContent.trim() : '',
    rating: rating ? rating.textContent.trim() : '',
    reviews: count ? (count.getAttribute('aria-label') || count.textContent) : '',
    signedIn: !signInLink
  });
})();`

const openReviewsScript = `(function () {
  const selectors = [
    'button[aria-label*="Reviews"]',
    'button[aria-label*="Reseñas"]',
    'button[role="tab"][aria-label*="eview"]'
  ];
  for (const sel of selectors) {
    const tab = document.querySelector(sel);
    if (tab) {
      tab.click();
      return true;
    }
  }
  return false;
})();`

const expandReviewsScript = `(function () {
  const buttons = document.querySelectorAll('button.w8nwRe');
  for (const btn of buttons) {
    btn.click();
  }
  return buttons.length;
})();`

const reviewsHTMLScript = `(function () {
  const cards = Array.from(document.querySelectorAll('div.jJc9Ad'));
  return cards.map(card => card.outerHTML).join('\n');
})();`

const scrollReviewsScript = `(function () {
  const panel = document.querySelector('div.m6QErb.DxyBCb.kA9KIf.dS8AEf');
  if (panel) {
    panel.scrollBy(0, panel.offsetHeight * 2);
    return true;
  }
  const cards = document.querySelectorAll('div.jJc9Ad');
  if (cards.length) {
    cards[cards.length - 1].scrollIntoView();
    return true;
  }
  window.scrollBy(0, 2000);
  return false;
})();`
